package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/ventwatch/internal/emission"
)

// KafkaConfig configures the action log stream.
type KafkaConfig struct {
	// Brokers is the list of Kafka broker addresses (host:port).
	Brokers []string

	// Topic receives one message per action log entry.
	Topic string

	// MaxAttempts bounds retries of a failed write. Defaults to 3.
	MaxAttempts int

	// WriteTimeout is the per-attempt timeout. Defaults to 5s.
	WriteTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EntryMessage is the JSON value of one stream message.
type EntryMessage struct {
	EventID string          `json:"event_id"`
	SiteID  string          `json:"site_id"`
	Status  emission.Status `json:"status"`
	Seq     int             `json:"seq"`
	Message string          `json:"message"`
	At      time.Time       `json:"timestamp_utc"`
}

// KafkaPublisher implements emission.AuditPublisher. Messages are keyed by event ID
// so the hash balancer keeps each event's entries on one partition, in order.
type KafkaPublisher struct {
	w           messageWriter
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
}

// NewKafkaPublisher validates cfg and builds the underlying writer. No connection is
// made until the first publish.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(w, cfg), nil
}

func newKafkaPublisher(w messageWriter, cfg KafkaConfig) *KafkaPublisher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &KafkaPublisher{
		w:           w,
		maxAttempts: cfg.MaxAttempts,
		timeout:     cfg.WriteTimeout,
		backoff:     100 * time.Millisecond,
	}
}

// Publish writes one message per entry, all in a single batch.
func (p *KafkaPublisher) Publish(ctx context.Context, e *emission.Event, entries []emission.ActionLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(entries))
	for _, l := range entries {
		value, err := json.Marshal(EntryMessage{
			EventID: e.ID,
			SiteID:  e.SiteID,
			Status:  e.Status,
			Seq:     l.Seq,
			Message: l.Message,
			At:      l.At,
		})
		if err != nil {
			return fmt.Errorf("marshal entry %d: %w", l.Seq, err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.ID), Value: value, Time: l.At})
	}

	var lastErr error
	backoff := p.backoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.w.WriteMessages(actx, msgs...)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish event %s: %w", e.ID, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return fmt.Errorf("publish event %s failed after %d attempts: %w", e.ID, p.maxAttempts, lastErr)
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.w == nil {
		return nil
	}
	return p.w.Close()
}
