// Package ingest consumes inbound envelopes from Kafka and feeds them to
// the pipeline.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/deskwing/deskwing/internal/pipeline"
)

type processor interface {
	Process(ctx context.Context, env pipeline.Envelope) (pipeline.Result, error)
}

// Consumer reads the incoming-messages topic with a consumer group so
// partition assignment spreads conversations across replicas.
type Consumer struct {
	reader   *kafka.Reader
	pipeline processor
	logger   *slog.Logger
}

// NewConsumer builds a Consumer. Pass empty brokers to disable ingestion;
// Run then returns immediately, which keeps HTTP-only deployments working.
func NewConsumer(brokers []string, topic, groupID string, p processor, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	c := &Consumer{
		pipeline: p,
		logger:   log.With(slog.String("service", "ingest")),
	}
	if len(brokers) == 0 {
		c.logger.Warn("kafka brokers not configured, queue ingestion disabled")
		return c
	}
	if topic == "" {
		topic = "desk.messages.incoming"
	}
	if groupID == "" {
		groupID = "deskwing-pipeline"
	}
	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return c
}

// Run consumes until ctx is cancelled. Envelopes that fail to decode are
// dropped with a log line; pipeline failures are already dead-lettered by
// the pipeline itself, so the offset is committed either way.
func (c *Consumer) Run(ctx context.Context) error {
	if c.reader == nil {
		return nil
	}
	c.logger.Info("consuming inbound messages")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var env pipeline.Envelope
		if err := json.Unmarshal(msg.Value, &env); err != nil {
			c.logger.Error("undecodable envelope dropped",
				slog.String("key", string(msg.Key)),
				slog.Any("error", err))
		} else {
			res, err := c.pipeline.Process(ctx, env)
			if err != nil {
				c.logger.Error("pipeline failed",
					slog.String("action", res.Action),
					slog.Any("error", err))
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// Close releases the Kafka reader.
func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
