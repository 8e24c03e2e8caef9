package batchworker

import (
	"context"
	"time"
)

// ProgressStatus is the lifecycle state of a FileProgress record. It
// progresses monotonically: Started -> InProgress -> Completed.
type ProgressStatus int

const (
	// StatusStarted marks the first observation of a file for a run.
	StatusStarted ProgressStatus = iota
	// StatusInProgress marks at least one page successfully written.
	StatusInProgress
	// StatusCompleted marks finalization having taken place for the file.
	StatusCompleted
)

func (s ProgressStatus) String() string {
	switch s {
	case StatusStarted:
		return "Started"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// FileProgress is the durable per-file extraction progress record (§3).
type FileProgress struct {
	FileID         string
	WorkerID       string
	Status         ProgressStatus
	LastPage       int
	CumulativeRows int64
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// ProgressStore holds one FileProgress record per fileId. All operations are
// upsert-shaped and idempotent (§4.2).
type ProgressStore interface {
	// SetStart creates the record with status=Started on first insert. On
	// an existing record it re-asserts Started only if the record is not
	// already InProgress or Completed.
	SetStart(ctx context.Context, workerID, fileID string) error

	// UpsertProgress sets status=InProgress, lastPage=page,
	// cumulativeRows=rows. Callers must ensure page is >= the current
	// lastPage (§4.8); lastPage never decreases.
	UpsertProgress(ctx context.Context, fileID string, page int, rows int64) error

	// SetCompleted transitions the record to Completed and stamps
	// completedAt.
	SetCompleted(ctx context.Context, fileID string) error

	// Get returns the record for fileId, or nil if none exists.
	Get(ctx context.Context, fileID string) (*FileProgress, error)

	// ListByWorker returns every record for workerId.
	ListByWorker(ctx context.Context, workerID string) ([]FileProgress, error)

	// GetMinOutstandingPage returns min(lastPage) over records with
	// status != Completed, or 0 if none are outstanding. This is the resume
	// page (§4.2, §4.8).
	GetMinOutstandingPage(ctx context.Context, workerID string) (int, error)
}
