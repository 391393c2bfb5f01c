package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSinkConfig configures the Kafka-backed sink.
type KafkaSinkConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic is the topic events are written to.
	Topic string

	// MaxAttempts is how many times a publish retries on transient error.
	// Defaults to 3 if <= 0.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout for writes. Defaults to 10s
	// if zero.
	WriteTimeout time.Duration
}

// KafkaSink publishes events to a Kafka topic. The entity ID is used as
// the message key so a hash balancer keeps per-entity ordering.
type KafkaSink struct {
	writer      *kafka.Writer
	maxAttempts int
}

// NewKafkaSink constructs a KafkaSink.
func NewKafkaSink(cfg KafkaSinkConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka sink: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	})

	return &KafkaSink{writer: w, maxAttempts: cfg.MaxAttempts}, nil
}

// Publish writes the event, retrying with exponential backoff on failure.
func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.EntityID),
		Value: value,
		Time:  event.OccurredAt,
	}

	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := s.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("publish failed after %d attempts: %w", s.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (s *KafkaSink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	return s.writer.Close()
}
