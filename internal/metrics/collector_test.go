package metrics

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.RecordMessage("chat", 100*time.Millisecond, -0.5, true)
	c.RecordMessage("chat", 300*time.Millisecond, 0.5, false)
	c.RecordMessage("email", 50*time.Millisecond, 0, false)
	c.RecordError("web_form")

	snap := c.Snapshot()

	chat, ok := snap.Channels["chat"]
	if !ok {
		t.Fatal("missing chat stats")
	}
	if chat.MessageCount != 2 {
		t.Errorf("chat messages = %d, want 2", chat.MessageCount)
	}
	if chat.EscalationCount != 1 {
		t.Errorf("chat escalations = %d, want 1", chat.EscalationCount)
	}
	if chat.AvgLatencyMS != 200 {
		t.Errorf("chat avg latency = %v, want 200", chat.AvgLatencyMS)
	}
	if chat.AvgSentiment != 0 {
		t.Errorf("chat avg sentiment = %v, want 0", chat.AvgSentiment)
	}
	if chat.EscalationRate != 0.5 {
		t.Errorf("chat escalation rate = %v, want 0.5", chat.EscalationRate)
	}

	web, ok := snap.Channels["web_form"]
	if !ok {
		t.Fatal("missing web_form stats")
	}
	if web.ErrorCount != 1 {
		t.Errorf("web_form errors = %d, want 1", web.ErrorCount)
	}
}

func TestCollectorSnapshotResets(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	c.RecordMessage("chat", time.Millisecond, 0, false)
	_ = c.Snapshot()

	snap := c.Snapshot()
	if len(snap.Channels) != 0 {
		t.Errorf("second snapshot should be empty, got %v", snap.Channels)
	}
}

func TestCollectorConcurrent(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.RecordMessage("chat", time.Millisecond, 0.1, false)
			}
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	if got := snap.Channels["chat"].MessageCount; got != 1000 {
		t.Errorf("messages = %d, want 1000", got)
	}
}

type capturePublisher struct {
	mu    sync.Mutex
	snaps []any
}

func (p *capturePublisher) PublishMetrics(ctx context.Context, key string, snapshot any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snapshot)
	return nil
}

func TestReporterStopFlushes(t *testing.T) {
	t.Parallel()

	c := NewCollector(nil)
	pub := &capturePublisher{}
	r := NewReporter(c, pub, time.Hour, nil)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.RecordMessage("email", 10*time.Millisecond, 0.2, false)
	r.Stop()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.snaps) != 1 {
		t.Fatalf("expected one final snapshot, got %d", len(pub.snaps))
	}
	snap, ok := pub.snaps[0].(Snapshot)
	if !ok {
		t.Fatalf("unexpected snapshot type %T", pub.snaps[0])
	}
	if snap.Channels["email"].MessageCount != 1 {
		t.Errorf("final snapshot missing email message")
	}
}
