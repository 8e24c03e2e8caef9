package batchworker

import (
	"context"
	"time"
)

// Sleep blocks for the given duration or until ctx is done, whichever comes
// first.
func Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
