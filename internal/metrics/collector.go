// Package metrics aggregates per-channel pipeline counters and publishes
// periodic snapshots.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ChannelStats is one channel's aggregate over a snapshot interval.
type ChannelStats struct {
	MessageCount    int     `json:"message_count"`
	EscalationCount int     `json:"escalation_count"`
	ErrorCount      int     `json:"error_count"`
	AvgLatencyMS    float64 `json:"avg_latency_ms"`
	AvgSentiment    float64 `json:"avg_sentiment"`
	EscalationRate  float64 `json:"escalation_rate"`
}

// Snapshot is the published aggregate, keyed by channel.
type Snapshot struct {
	GeneratedAt time.Time               `json:"generated_at"`
	Channels    map[string]ChannelStats `json:"channels"`
}

type publisher interface {
	PublishMetrics(ctx context.Context, key string, snapshot any) error
}

type channelCounters struct {
	messages     int
	escalations  int
	errors       int
	latencySum   float64
	sentimentSum float64
}

// Collector accumulates counters in memory. Safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	channels map[string]*channelCounters
	logger   *slog.Logger
}

// NewCollector builds an empty Collector.
func NewCollector(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		channels: map[string]*channelCounters{},
		logger:   log.With(slog.String("service", "metrics")),
	}
}

// RecordMessage counts one processed message.
func (c *Collector) RecordMessage(channel string, latency time.Duration, sentiment float64, escalated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cc := c.counters(channel)
	cc.messages++
	cc.latencySum += float64(latency.Milliseconds())
	cc.sentimentSum += sentiment
	if escalated {
		cc.escalations++
	}
}

// RecordError counts one pipeline failure.
func (c *Collector) RecordError(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(channel).errors++
}

func (c *Collector) counters(channel string) *channelCounters {
	if channel == "" {
		channel = "unknown"
	}
	cc, ok := c.channels[channel]
	if !ok {
		cc = &channelCounters{}
		c.channels[channel] = cc
	}
	return cc
}

// Snapshot drains the current counters into an aggregate. Channels with no
// activity since the last snapshot are omitted.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		GeneratedAt: time.Now().UTC(),
		Channels:    map[string]ChannelStats{},
	}
	for channel, cc := range c.channels {
		if cc.messages == 0 && cc.errors == 0 {
			continue
		}
		stats := ChannelStats{
			MessageCount:    cc.messages,
			EscalationCount: cc.escalations,
			ErrorCount:      cc.errors,
		}
		if cc.messages > 0 {
			stats.AvgLatencyMS = cc.latencySum / float64(cc.messages)
			stats.AvgSentiment = cc.sentimentSum / float64(cc.messages)
			stats.EscalationRate = float64(cc.escalations) / float64(cc.messages)
		}
		snap.Channels[channel] = stats
	}
	c.channels = map[string]*channelCounters{}
	return snap
}

// Reporter publishes collector snapshots on a schedule.
type Reporter struct {
	collector *Collector
	producer  publisher
	cron      *cron.Cron
	interval  time.Duration
	logger    *slog.Logger
}

// NewReporter wires a Collector to a publisher. interval <= 0 defaults to
// five minutes.
func NewReporter(collector *Collector, producer publisher, interval time.Duration, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reporter{
		collector: collector,
		producer:  producer,
		interval:  interval,
		logger:    log.With(slog.String("service", "metrics")),
	}
}

// Start schedules periodic publication. Call Stop to drain and halt.
func (r *Reporter) Start() error {
	r.cron = cron.New()
	spec := fmt.Sprintf("@every %s", r.interval)
	if _, err := r.cron.AddFunc(spec, r.flush); err != nil {
		return fmt.Errorf("schedule metrics flush: %w", err)
	}
	r.cron.Start()
	r.logger.Info("metrics reporter started", slog.Duration("interval", r.interval))
	return nil
}

// Stop halts the schedule and publishes one final snapshot.
func (r *Reporter) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.flush()
}

func (r *Reporter) flush() {
	snap := r.collector.Snapshot()
	if len(snap.Channels) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.producer.PublishMetrics(ctx, snap.GeneratedAt.Format(time.RFC3339), snap); err != nil {
		r.logger.Error("metrics publish failed", slog.Any("error", err))
		return
	}
	r.logger.Debug("metrics snapshot published", slog.Int("channels", len(snap.Channels)))
}
