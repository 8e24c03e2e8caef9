package batchworker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// OutputWriterFactory opens (or creates) the OutputWriter for a configured
// file, given its expanded file name.
type OutputWriterFactory func(fileID, fileName string) (OutputWriter, error)

// Orchestrator is the state machine composing LeaseStore, ProgressStore,
// PageReader, TranslatorRegistry, OutputWriter and EventPublisher into the
// daily extraction run described in §4.8. One Orchestrator instance is
// constructed per replica process.
type Orchestrator struct {
	Config     Config
	InstanceID string

	Lease      LeaseStore
	Progress   ProgressStore
	Reader     PageReader
	Registry   *TranslatorRegistry
	Publisher  EventPublisher
	Trigger    TriggerGuard
	NewWriter  OutputWriterFactory

	Retry RetryPolicy

	now func() time.Time
}

// NewOrchestrator wires one replica's collaborators together. Retry is
// derived from Config.Policies if not overridden by the caller afterward.
func NewOrchestrator(cfg Config, instanceID string, lease LeaseStore, progress ProgressStore, reader PageReader, registry *TranslatorRegistry, publisher EventPublisher, trigger TriggerGuard, newWriter OutputWriterFactory) *Orchestrator {
	return &Orchestrator{
		Config:     cfg,
		InstanceID: instanceID,
		Lease:      lease,
		Progress:   progress,
		Reader:     reader,
		Registry:   registry,
		Publisher:  publisher,
		Trigger:    trigger,
		NewWriter:  newWriter,
		Retry: RetryPolicy{
			MaxRetries:        cfg.Policies.MaxRetries,
			InitialBackoff:    cfg.Policies.InitialBackoff,
			BackoffMultiplier: cfg.Policies.BackoffMultiplier,
		},
		now: time.Now,
	}
}

// Run loops Follower -> Candidate -> Leader -> Releasing -> Follower until
// ctx is canceled by the host (§5 "the host may request shutdown at any
// time").
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		Sleep(ctx, o.Config.Policies.TakeoverPollingInterval)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		acquired, err := o.Lease.TryAcquire(ctx, o.Config.WorkerID, o.InstanceID, o.Config.Policies.LeaseTTL)
		if err != nil {
			slog.Warn("lease acquisition attempt failed", "workerId", o.Config.WorkerID, "error", err)
			continue
		}
		if !acquired {
			continue
		}

		if err := o.leadOneRun(ctx); err != nil {
			logRunError("leader run ended with error", err)
		}
	}
}

// leadOneRun executes Candidate -> Leader{Preparing,Extracting,Finalizing}
// -> Releasing for one acquired lease, always releasing the lease on every
// exit path (§5).
func (o *Orchestrator) leadOneRun(ctx context.Context) error {
	leaderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var lost atomic.Bool
	heartbeatDone := make(chan struct{})
	go o.heartbeat(leaderCtx, cancel, &lost, heartbeatDone)
	defer func() {
		cancel()
		<-heartbeatDone
		if err := o.Lease.Release(ctx, o.Config.WorkerID, o.InstanceID); err != nil {
			slog.Warn("lease release failed", "workerId", o.Config.WorkerID, "instanceId", o.InstanceID, "error", err)
		}
	}()

	should, err := o.Trigger.ShouldProcess(leaderCtx, o.Config.WorkerID)
	if err != nil {
		return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID}
	}
	if !should {
		return nil
	}

	for _, f := range o.Config.Files {
		existing, err := o.Progress.Get(leaderCtx, f.FileID)
		if err != nil {
			return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID}
		}
		if existing == nil {
			if err := o.Progress.SetStart(leaderCtx, o.Config.WorkerID, f.FileID); err != nil {
				return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID}
			}
		}
	}

	if err := o.extract(leaderCtx, &lost); err != nil {
		return err
	}
	if lost.Load() {
		return &Error{Kind: LeaseLost, Err: fmt.Errorf("lease renewal failed mid-run"), WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID}
	}

	if err := o.finalize(leaderCtx); err != nil {
		return err
	}

	return o.Trigger.MarkProcessed(leaderCtx, o.Config.WorkerID)
}

// heartbeat wakes every LeaseHeartbeatInterval and renews the lease. On
// renewal failure it marks lost and cancels leaderCtx so the main loop's
// per-page leadership check observes the signal promptly (§5).
func (o *Orchestrator) heartbeat(leaderCtx context.Context, cancel context.CancelFunc, lost *atomic.Bool, done chan struct{}) {
	defer close(done)
	for {
		Sleep(leaderCtx, o.Config.Policies.LeaseHeartbeatInterval)
		if leaderCtx.Err() != nil {
			return
		}
		ok, err := o.Lease.Renew(leaderCtx, o.Config.WorkerID, o.InstanceID, o.Config.Policies.LeaseTTL)
		if err != nil || !ok {
			slog.Warn("lease renewal failed, abandoning leadership", "workerId", o.Config.WorkerID, "instanceId", o.InstanceID, "error", err)
			lost.Store(true)
			cancel()
			return
		}
	}
}

// extract drives Leader.Extracting: resume page computation, then the
// page-by-page read + fan-out-write loop (§4.8 step 3).
func (o *Orchestrator) extract(ctx context.Context, lost *atomic.Bool) error {
	resumePage, err := o.Progress.GetMinOutstandingPage(ctx, o.Config.WorkerID)
	if err != nil {
		return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID}
	}

	total, err := o.Reader.GetTotalRowCount(ctx)
	if err != nil {
		return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID}
	}
	totalPages := TotalPages(total, o.Config.SQL.PageSize)

	for p := resumePage; p < totalPages; p++ {
		if ctx.Err() != nil {
			return nil
		}

		held, err := o.confirmLeadership(ctx)
		if err != nil {
			return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, Page: p}
		}
		if !held {
			return &Error{Kind: LeaseLost, Err: fmt.Errorf("lease no longer names this instance"), WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, Page: p}
		}

		var page Page
		err = o.Retry.Retry(ctx, func(ctx context.Context) error {
			var readErr error
			page, readErr = o.Reader.ReadPage(ctx, p)
			return readErr
		}, nil)
		if err != nil {
			return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, Page: p}
		}
		if len(page) == 0 {
			return nil
		}

		cumulativeRows := int64(p*o.Config.SQL.PageSize) + int64(len(page))

		if err := o.writePageToAllFiles(ctx, p, cumulativeRows, page); err != nil {
			return err
		}

		if lost.Load() {
			return nil
		}
	}
	return nil
}

// confirmLeadership re-reads the lease and verifies instanceId still
// matches, per §4.8 step 3a.
func (o *Orchestrator) confirmLeadership(ctx context.Context) (bool, error) {
	info, err := o.Lease.Get(ctx, o.Config.WorkerID)
	if err != nil {
		return false, err
	}
	if info == nil || info.InstanceID != o.InstanceID {
		return false, nil
	}
	return true, nil
}

// writePageToAllFiles fans one page out to every configured file
// concurrently, joining all before returning (§4.8 step 3d, §5).
func (o *Orchestrator) writePageToAllFiles(ctx context.Context, p int, cumulativeRows int64, page Page) error {
	runner := NewTaskRunner(ctx, maxInt(len(o.Config.Files), 1))

	for i := range o.Config.Files {
		f := o.Config.Files[i]
		runner.Go(func() error {
			return o.writePageToFile(runner.Context(), f, p, cumulativeRows, page)
		})
	}

	if err := runner.Wait(); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) writePageToFile(ctx context.Context, f FileConfig, p int, cumulativeRows int64, page Page) error {
	existing, err := o.Progress.Get(ctx, f.FileID)
	if err != nil {
		return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID, Page: p}
	}
	if existing != nil && existing.Status == StatusCompleted && existing.LastPage >= p {
		return nil
	}

	translator, err := o.Registry.Lookup(f.TranslatorID)
	if err != nil {
		return &Error{Kind: StateInconsistency, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID, Page: p}
	}
	lines, err := translator.TranslateBatch(page)
	if err != nil {
		return &Error{Kind: StateInconsistency, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID, Page: p}
	}

	writer, err := o.NewWriter(f.FileID, f.FileName(o.now()))
	if err != nil {
		return &Error{Kind: WriteFailure, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID, Page: p}
	}

	err = o.Retry.Retry(ctx, func(ctx context.Context) error {
		return writer.AppendPage(ctx, p, cumulativeRows, lines)
	}, nil)
	if err != nil {
		return &Error{Kind: WriteFailure, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID, Page: p, CumulativeRows: cumulativeRows}
	}

	if err := o.Progress.UpsertProgress(ctx, f.FileID, p, cumulativeRows); err != nil {
		return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID, Page: p, CumulativeRows: cumulativeRows}
	}
	return nil
}

// finalize drives Leader.Finalizing: for each file, RemoveFooter ->
// SetCompleted -> PublishCompleted, in that mandated order (§4.8 step 4).
// Across files the order is unordered; failures abort the whole finalize.
func (o *Orchestrator) finalize(ctx context.Context) error {
	runner := NewTaskRunner(ctx, maxInt(len(o.Config.Files), 1))
	for i := range o.Config.Files {
		f := o.Config.Files[i]
		runner.Go(func() error {
			return o.finalizeFile(runner.Context(), f)
		})
	}
	return runner.Wait()
}

func (o *Orchestrator) finalizeFile(ctx context.Context, f FileConfig) error {
	writer, err := o.NewWriter(f.FileID, f.FileName(o.now()))
	if err != nil {
		return &Error{Kind: WriteFailure, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID}
	}

	if err := writer.RemoveFooter(ctx); err != nil {
		return &Error{Kind: WriteFailure, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID}
	}

	progress, err := o.Progress.Get(ctx, f.FileID)
	if err != nil {
		return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID}
	}
	var totalRows int64
	if progress != nil {
		totalRows = progress.CumulativeRows
	}

	if err := o.Progress.SetCompleted(ctx, f.FileID); err != nil {
		return &Error{Kind: Transient, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID}
	}

	completedAt := o.now()
	err = o.Retry.Retry(ctx, func(ctx context.Context) error {
		return o.Publisher.PublishCompleted(ctx, o.Config.WorkerID, f.FileID, o.Config.Bus.EventType, totalRows, completedAt)
	}, nil)
	if err != nil {
		return &Error{Kind: PublishFailure, Err: err, WorkerID: o.Config.WorkerID, InstanceID: o.InstanceID, FileID: f.FileID, CumulativeRows: totalRows}
	}
	return nil
}

// Reconcile addresses §9 Open Question (a): republishing completion events
// for files whose ProgressStore status is Completed but whose event may
// never have reached consumers. It is a narrow, explicitly-invoked
// operation, not an automatic recovery path; because publication is
// at-least-once, re-invoking it is always safe.
func (o *Orchestrator) Reconcile(ctx context.Context, fileIDs ...string) error {
	for _, fileID := range fileIDs {
		progress, err := o.Progress.Get(ctx, fileID)
		if err != nil {
			return err
		}
		if progress == nil || progress.Status != StatusCompleted {
			continue
		}
		if err := o.Publisher.PublishCompleted(ctx, o.Config.WorkerID, fileID, o.Config.Bus.EventType, progress.CumulativeRows, o.now()); err != nil {
			return err
		}
	}
	return nil
}
