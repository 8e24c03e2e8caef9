package kafkapublish

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Shopify/sarama"

	"github.com/sharedcode/batchworker"
)

type fakeProducer struct {
	sent   []*sarama.ProducerMessage
	closed bool
	err    error
}

func (f *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	f.sent = append(f.sent, msg)
	return 0, int64(len(f.sent) - 1), nil
}

func (f *fakeProducer) Close() error {
	f.closed = true
	return nil
}

func TestPublishCompleted_SendsJSONPayloadWithCorrelationID(t *testing.T) {
	fake := &fakeProducer{}
	p := NewWithProducer(fake, "loan-worker-events")

	completedAt := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	if err := p.PublishCompleted(context.Background(), "LoanWorker", "fileA", "FileCompleted", 500, completedAt); err != nil {
		t.Fatalf("PublishCompleted: %v", err)
	}

	if len(fake.sent) != 1 {
		t.Fatalf("expected 1 message sent, got %d", len(fake.sent))
	}
	msg := fake.sent[0]
	if msg.Topic != "loan-worker-events" {
		t.Fatalf("expected topic loan-worker-events, got %s", msg.Topic)
	}

	key, err := msg.Key.Encode()
	if err != nil {
		t.Fatalf("encoding key: %v", err)
	}
	if string(key) != "LoanWorker:fileA" {
		t.Fatalf("expected key LoanWorker:fileA, got %s", key)
	}

	valueBytes, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("encoding value: %v", err)
	}
	var event batchworker.CompletionEvent
	if err := json.Unmarshal(valueBytes, &event); err != nil {
		t.Fatalf("unmarshaling event: %v", err)
	}
	if event.WorkerID != "LoanWorker" || event.FileID != "fileA" {
		t.Fatalf("unexpected event payload: %+v", event)
	}
	if event.CorrelationID != batchworker.CorrelationID("LoanWorker", "fileA", completedAt.UnixNano()) {
		t.Fatalf("unexpected correlation id: %s", event.CorrelationID)
	}
}

func TestPublishCompleted_PropagatesSendError(t *testing.T) {
	fake := &fakeProducer{err: sarama.ErrOutOfBrokers}
	p := NewWithProducer(fake, "topic")

	err := p.PublishCompleted(context.Background(), "LoanWorker", "fileA", "FileCompleted", 1, time.Now())
	if err == nil {
		t.Fatal("expected error to propagate from producer")
	}
}

func TestPublishCompleted_HonorsCancelledContext(t *testing.T) {
	fake := &fakeProducer{}
	p := NewWithProducer(fake, "topic")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.PublishCompleted(ctx, "LoanWorker", "fileA", "FileCompleted", 1, time.Now()); err == nil {
		t.Fatal("expected cancelled context to produce an error")
	}
	if len(fake.sent) != 0 {
		t.Fatal("expected no message sent for cancelled context")
	}
}
