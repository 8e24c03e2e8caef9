// Package kafkapublish implements batchworker.EventPublisher on top of
// Shopify/sarama, following the teacher lineage's kafka package conventions
// (kafka/producer.go, kafka/queue.go): a sarama.SyncProducer configured with
// a random partitioner and WaitForAll acks, messages built from a
// JSON-marshaled payload.
package kafkapublish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"

	"github.com/sharedcode/batchworker"
)

// Config names the brokers and topic a Publisher produces to, mirroring the
// teacher's kafka.Config.
type Config struct {
	Brokers []string
	Topic   string
}

// NewSaramaConfig returns the producer configuration the teacher's
// kafka.GetProducer builds when no override is supplied: version-pinned,
// random partitioner, WaitForAll acks, success reporting enabled.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	cfg.Producer.Partitioner = sarama.NewRandomPartitioner
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	return cfg
}

// syncProducer is the narrow surface of sarama.SyncProducer Publisher
// depends on, extracted for testability.
type syncProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

// Publisher implements batchworker.EventPublisher against a Kafka topic.
type Publisher struct {
	producer syncProducer
	topic    string
}

// Open constructs a sarama.SyncProducer for config.Brokers and returns a
// Publisher bound to config.Topic.
func Open(config Config, saramaConfig *sarama.Config) (*Publisher, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafkapublish: no brokers configured")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafkapublish: no topic configured")
	}
	if saramaConfig == nil {
		saramaConfig = NewSaramaConfig()
	}
	p, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("kafkapublish: creating producer: %w", err)
	}
	return NewWithProducer(p, config.Topic), nil
}

// NewWithProducer wraps an already-constructed sarama.SyncProducer (or a
// test fake satisfying the same surface).
func NewWithProducer(producer syncProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// Close releases the underlying producer.
func (p *Publisher) Close() error {
	return p.producer.Close()
}

// PublishCompleted implements batchworker.EventPublisher.PublishCompleted.
func (p *Publisher) PublishCompleted(ctx context.Context, workerID, fileID, eventType string, totalRows int64, completedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := batchworker.CompletionEvent{
		WorkerID:      workerID,
		FileID:        fileID,
		EventType:     eventType,
		CompletedAt:   completedAt,
		TotalRows:     totalRows,
		CorrelationID: batchworker.CorrelationID(workerID, fileID, completedAt.UnixNano()),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafkapublish: marshaling completion event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Partition: -1,
		Key:       sarama.StringEncoder(batchworker.EventKey(workerID, fileID)),
		Value:     sarama.ByteEncoder(payload),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafkapublish: sending completion event for %s/%s: %w", workerID, fileID, err)
	}
	return nil
}
