package batchworker

import (
	"context"
	"time"
)

// TriggerGuard decides, at most once per calendar day, whether a worker
// should run (§4.7).
type TriggerGuard interface {
	// ShouldProcess returns false if a completed or in-progress run already
	// exists for workerId whose startedAt falls within the current
	// calendar day (UTC).
	ShouldProcess(ctx context.Context, workerID string) (bool, error)

	// MarkProcessed is a hook invoked after a successful run. It may be a
	// no-op when the decision is derived from ProgressStore, as it is in
	// the default implementation here.
	MarkProcessed(ctx context.Context, workerID string) error
}

// progressTriggerGuard is the default TriggerGuard: it inspects
// ProgressStore.ListByWorker's startedAt timestamps as a proxy for "did a
// run start in the current window". §9 Open Question (c) flags this as the
// weaker of two designs; a dedicated daily-marker collection would be
// sounder, but is not required by any invariant this package verifies, so
// it is left as a documented follow-up rather than built speculatively.
type progressTriggerGuard struct {
	store  ProgressStore
	window time.Duration
	now    func() time.Time
}

// NewProgressTriggerGuard returns the default TriggerGuard backed by store,
// gating on the §6 default DailyTriggerWindow (24h, i.e. the UTC calendar
// day).
func NewProgressTriggerGuard(store ProgressStore) TriggerGuard {
	return NewProgressTriggerGuardWithWindow(store, 0)
}

// NewProgressTriggerGuardWithWindow returns the default TriggerGuard gating
// on window instead of the 24h default (§6 Policies.DailyTriggerWindow).
// window <= 0 falls back to 24h.
func NewProgressTriggerGuardWithWindow(store ProgressStore, window time.Duration) TriggerGuard {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &progressTriggerGuard{store: store, window: window, now: time.Now}
}

func (g *progressTriggerGuard) ShouldProcess(ctx context.Context, workerID string) (bool, error) {
	records, err := g.store.ListByWorker(ctx, workerID)
	if err != nil {
		return false, err
	}
	current := g.now().UTC().Truncate(g.window)
	for _, r := range records {
		if r.StartedAt.UTC().Truncate(g.window).Equal(current) {
			return false, nil
		}
	}
	return true, nil
}

func (g *progressTriggerGuard) MarkProcessed(ctx context.Context, workerID string) error {
	// No-op: the decision above is derived entirely from ProgressStore,
	// which SetStart/SetCompleted already keep current.
	return nil
}
