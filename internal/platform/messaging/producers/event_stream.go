// Package producers provides the Kafka publication path for journal events.
// Every durable append is streamed to a topic so the query-side projection
// can consume it; the journal itself stays the source of truth.
package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/banking-saga-core/internal/config"
	"github.com/segmentio/kafka-go"
)

// KafkaWriter abstracts the kafka writer for testability
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventStreamProducer publishes journal events to the events topic, keyed by
// persistence key so per-entity ordering survives partitioning.
type EventStreamProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// StreamedEvent is the message body published for each journal append.
type StreamedEvent struct {
	Key       string          `json:"key"`
	Offset    int64           `json:"offset"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEventStreamProducer creates the producer and ensures the topic exists.
func NewEventStreamProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*EventStreamProducer, error) {
	if cfg.EventsTopic == "" {
		return nil, fmt.Errorf("kafka events topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for event stream producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.EventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure events topic %s exists: %w", cfg.EventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true, // The journal is durable; the stream tolerates async loss windows
		WriteTimeout: cfg.WriteTimeout,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write event stream messages asynchronously", "topic", cfg.EventsTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote event stream messages asynchronously", "topic", cfg.EventsTopic, "count", len(messages))
			}
		},
	}

	return &EventStreamProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventsTopic,
	}, nil
}

// Publish sends one streamed event, keyed by its persistence key.
func (p *EventStreamProducer) Publish(ctx context.Context, event StreamedEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal streamed event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish streamed event",
			"topic", p.topic,
			"key", event.Key,
			"offset", event.Offset,
			"error", err,
		)
		return fmt.Errorf("failed to publish streamed event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published streamed event",
		"topic", p.topic,
		"key", event.Key,
		"offset", event.Offset,
	)
	return nil
}

// PublishAppend implements the journal publisher contract.
func (p *EventStreamProducer) PublishAppend(ctx context.Context, key string, offset int64, eventType string, payload json.RawMessage) error {
	return p.Publish(ctx, StreamedEvent{
		Key:       key,
		Offset:    offset,
		EventType: eventType,
		Payload:   payload,
	})
}

// Close closes the underlying kafka writer.
func (p *EventStreamProducer) Close() error {
	p.logger.Info("Closing event stream Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event stream kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
