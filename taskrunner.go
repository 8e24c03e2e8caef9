package batchworker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner bounds the number of concurrently running goroutines spawned
// via Go, joining all of them on Wait. The Orchestrator uses one per page to
// fan writes out across configured files and join them before advancing
// (§5 "per-page fan-out"), and another to finalize the configured files
// concurrently. The heartbeat runs on its own goroutine, not on a
// TaskRunner.
type TaskRunner struct {
	eg          *errgroup.Group
	limiterChan chan struct{}
	ctx         context.Context
}

// NewTaskRunner returns a TaskRunner bounding concurrency at maxThreadCount,
// deriving its context from ctx so a failure in any task cancels the rest.
func NewTaskRunner(ctx context.Context, maxThreadCount int) *TaskRunner {
	eg, egCtx := errgroup.WithContext(ctx)
	return &TaskRunner{
		eg:          eg,
		limiterChan: make(chan struct{}, maxThreadCount),
		ctx:         egCtx,
	}
}

// Context returns the runner's (possibly canceled-on-first-error) context.
func (tr *TaskRunner) Context() context.Context {
	return tr.ctx
}

// Go runs task on a new goroutine, blocking only if maxThreadCount tasks are
// already in flight.
func (tr *TaskRunner) Go(task func() error) {
	tr.limiterChan <- struct{}{}
	tr.eg.Go(func() error {
		defer func() { <-tr.limiterChan }()
		return task()
	})
}

// Wait blocks until every task started via Go has returned, yielding the
// first non-nil error, if any.
func (tr *TaskRunner) Wait() error {
	return tr.eg.Wait()
}
