package batchworker

import (
	"context"
	"errors"
	log "log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy drives the exponential backoff used around transient external
// calls (store/page-read/publish), per §4.8 step 3 and §7: delay after
// attempt k is initialBackoff * backoffMultiplier^k, capped at maxRetries.
type RetryPolicy struct {
	MaxRetries       int
	InitialBackoff   time.Duration
	BackoffMultiplier float64
}

// Retry runs task under the policy's exponential backoff. gaveUpTask, if
// non-nil, is invoked once all retries are exhausted, before the final error
// is returned.
func (p RetryPolicy) Retry(ctx context.Context, task func(ctx context.Context) error, gaveUpTask func(ctx context.Context)) error {
	initial := p.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}
	mult := p.BackoffMultiplier
	if mult <= 0 {
		mult = 2.0
	}
	b := retry.NewExponential(initial)
	b = retry.WithMaxRetries(uint64(maxInt(p.MaxRetries, 0)), b)
	// go-retry's exponential backoff doubles by default; when the caller's
	// multiplier differs from 2.0 we scale the computed delay ourselves.
	if mult != 2.0 {
		b = retryWithCustomMultiplier(initial, mult, uint64(maxInt(p.MaxRetries, 0)))
	}
	wrapped := func(ctx context.Context) error {
		err := task(ctx)
		if err == nil {
			return nil
		}
		if ShouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	}
	if err := retry.Do(ctx, b, wrapped); err != nil {
		log.Warn(err.Error()+", gave up", "maxRetries", p.MaxRetries)
		if gaveUpTask != nil {
			gaveUpTask(ctx)
		}
		return err
	}
	return nil
}

// retryWithCustomMultiplier builds a backoff.Backoff that grows by mult each
// attempt starting from initial, capped at maxRetries attempts.
func retryWithCustomMultiplier(initial time.Duration, mult float64, maxRetries uint64) retry.Backoff {
	attempt := 0
	b := retry.BackoffFunc(func() (time.Duration, bool) {
		if uint64(attempt) >= maxRetries {
			return 0, true
		}
		d := float64(initial)
		for i := 0; i < attempt; i++ {
			d *= mult
		}
		attempt++
		return time.Duration(d), false
	})
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ShouldRetry reports whether err is worth retrying: it excludes context
// cancellation/timeouts and well-known permanent OS-level failures.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, os.ErrExist) {
		return false
	}
	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EMFILE),
		errors.Is(err, syscall.ENFILE),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.ENOTEMPTY),
		errors.Is(err, syscall.EMLINK),
		errors.Is(err, syscall.ELOOP),
		errors.Is(err, syscall.EXDEV),
		errors.Is(err, syscall.EEXIST),
		errors.Is(err, syscall.EINVAL):
		return false
	}
	if strings.Contains(err.Error(), "read-only file system") {
		return false
	}
	return true
}
