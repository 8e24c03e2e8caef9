package batchworker

import (
	"context"
	"time"
)

// LeaseInfo is a diagnostic read of a worker's current lease record.
type LeaseInfo struct {
	WorkerID   string
	InstanceID string
	AcquiredAt time.Time
	ExpiresAt  time.Time
}

// LeaseStore is a durable, TTL-expiring single-holder mutex keyed by worker
// identity (§4.1). Implementations must bias every failure toward losing
// leadership rather than falsely claiming or retaining it: a transient store
// error in TryAcquire or Renew must be reported as "not acquired"/"not
// renewed", never as success.
type LeaseStore interface {
	// TryAcquire atomically claims the lease for instanceId if no record
	// exists or the existing record has expired. Implementations that
	// cannot express this as a single atomic conditional write must upsert
	// then read back, returning true only if the record still names
	// instanceId.
	TryAcquire(ctx context.Context, workerID, instanceID string, ttl time.Duration) (bool, error)

	// Renew conditionally extends expiresAt only where both workerId and
	// instanceId match the current record. Returns true iff exactly one
	// record was modified.
	Renew(ctx context.Context, workerID, instanceID string, ttl time.Duration) (bool, error)

	// Release conditionally deletes the record matching both keys. A
	// missing record is not an error.
	Release(ctx context.Context, workerID, instanceID string) error

	// IsExpiredOrUnheld reports true when no record exists or it has
	// expired.
	IsExpiredOrUnheld(ctx context.Context, workerID string) (bool, error)

	// Get returns the current lease record, or nil if none exists.
	Get(ctx context.Context, workerID string) (*LeaseInfo, error)
}
