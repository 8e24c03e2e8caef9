package batchworker

import (
	"context"
	"fmt"
	"time"
)

// CompletionEvent is the at-least-once completion record published per file
// (§4.6, §6). CorrelationID is intended for downstream consumer
// deduplication and is stable across redelivery of the same logical event:
// the Orchestrator's retries of one publish reuse one completedAt stamp.
// Orchestrator.Reconcile publishes a new event with a fresh stamp.
type CompletionEvent struct {
	WorkerID      string    `json:"workerId"`
	FileID        string    `json:"fileId"`
	EventType     string    `json:"eventType"`
	CompletedAt   time.Time `json:"completedAt"`
	TotalRows     int64     `json:"totalRows"`
	CorrelationID string    `json:"correlationId"`
}

// EventPublisher publishes a CompletionEvent per finalized file to a named
// topic, keyed by "{workerId}:{fileId}". Delivery is at-least-once (§4.6).
type EventPublisher interface {
	PublishCompleted(ctx context.Context, workerID, fileID, eventType string, totalRows int64, completedAt time.Time) error
}

// CorrelationID builds the downstream-deduplication key for an event, per
// §4.6: "{workerId}:{fileId}:{monotonicStamp}".
func CorrelationID(workerID, fileID string, monotonicStamp int64) string {
	return fmt.Sprintf("%s:%s:%d", workerID, fileID, monotonicStamp)
}

// EventKey builds the publication key for an event: "{workerId}:{fileId}".
func EventKey(workerID, fileID string) string {
	return fmt.Sprintf("%s:%s", workerID, fileID)
}
