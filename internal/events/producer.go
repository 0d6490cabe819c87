// Package events publishes pipeline outcomes to Kafka: escalation
// handoffs, dead-lettered envelopes, and periodic metrics snapshots.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Default topic names; override via configuration.
const (
	TopicIncoming    = "desk.messages.incoming"
	TopicDeadLetter  = "desk.dlq"
	TopicEscalations = "desk.escalations"
	TopicMetrics     = "desk.metrics"
)

// Escalation is the handoff record consumed by the human-support notifier.
type Escalation struct {
	EventID        string    `json:"event_id"`
	ConversationID string    `json:"conversation_id"`
	TicketID       string    `json:"ticket_id,omitempty"`
	CustomerID     string    `json:"customer_id"`
	Reason         string    `json:"reason"`
	Channel        string    `json:"channel"`
	TranscriptRef  string    `json:"transcript_ref"`
	EscalatedAt    time.Time `json:"escalated_at"`
}

// DeadLetter wraps an envelope that exhausted its retries so it can be
// reprocessed later. RawEnvelope is the original payload untouched.
type DeadLetter struct {
	EventID     string          `json:"event_id"`
	Reason      string          `json:"reason"`
	Error       string          `json:"error,omitempty"`
	RawEnvelope json.RawMessage `json:"raw_envelope"`
	FailedAt    time.Time       `json:"failed_at"`
}

// Producer writes pipeline events to their topics. Safe for concurrent use.
type Producer struct {
	escalationWriter *kafka.Writer
	deadLetterWriter *kafka.Writer
	metricsWriter    *kafka.Writer
	logger           *slog.Logger
}

// NewProducer builds writers for every outbound topic. Pass nil brokers to
// get a disabled producer whose publishes are logged no-ops, which keeps
// broker-less development setups working.
func NewProducer(brokers []string, escalationsTopic, deadLetterTopic, metricsTopic string, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	p := &Producer{logger: log.With(slog.String("service", "events"))}
	if len(brokers) == 0 {
		p.logger.Warn("kafka brokers not configured, event publishing disabled")
		return p
	}
	p.escalationWriter = newWriter(brokers, escalationsTopic, TopicEscalations)
	p.deadLetterWriter = newWriter(brokers, deadLetterTopic, TopicDeadLetter)
	p.metricsWriter = newWriter(brokers, metricsTopic, TopicMetrics)
	return p
}

func newWriter(brokers []string, topic, fallback string) *kafka.Writer {
	if topic == "" {
		topic = fallback
	}
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
}

// PublishEscalation emits a handoff record keyed by conversation so all
// events for one conversation land on the same partition.
func (p *Producer) PublishEscalation(ctx context.Context, esc Escalation) error {
	if esc.EventID == "" {
		esc.EventID = uuid.NewString()
	}
	return p.publish(ctx, p.escalationWriter, esc.ConversationID, esc, "escalation")
}

// PublishDeadLetter parks a failed envelope for later reprocessing. Envelopes
// rejected before a conversation key exists are keyed by the event id.
func (p *Producer) PublishDeadLetter(ctx context.Context, key string, dl DeadLetter) error {
	if dl.EventID == "" {
		dl.EventID = uuid.NewString()
	}
	if key == "" {
		key = dl.EventID
	}
	return p.publish(ctx, p.deadLetterWriter, key, dl, "dead_letter")
}

// PublishMetrics emits a metrics snapshot.
func (p *Producer) PublishMetrics(ctx context.Context, key string, snapshot any) error {
	return p.publish(ctx, p.metricsWriter, key, snapshot, "metrics")
}

func (p *Producer) publish(ctx context.Context, w *kafka.Writer, key string, event any, kind string) error {
	if w == nil {
		p.logger.Debug("event publishing disabled, dropping", slog.String("kind", kind))
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data}); err != nil {
		return err
	}
	p.logger.Debug("event published", slog.String("kind", kind), slog.String("key", key))
	return nil
}

// Close flushes and closes all writers.
func (p *Producer) Close() error {
	var firstErr error
	for _, w := range []*kafka.Writer{p.escalationWriter, p.deadLetterWriter, p.metricsWriter} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
