package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePublisher struct {
	mu    sync.Mutex
	topic string
	logs  []AggregatedLogEntry
}

func (p *fakePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topic = topic
	p.logs = append(p.logs, payload.([]AggregatedLogEntry)...)
	return nil
}

func TestCollectorAggregatesErrors(t *testing.T) {
	pub := &fakePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "optsignal.logs",
		Publisher:      pub,
	})

	for i := 0; i < 3; i++ {
		l.Error("backtest failed", String("symbol", "AAPL"), Error(errors.New("boom")))
	}
	l.Info("not collected")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topic != "optsignal.logs" {
		t.Fatalf("topic = %q", pub.topic)
	}
	if len(pub.logs) != 1 {
		t.Fatalf("expected 1 aggregated entry, got %d", len(pub.logs))
	}
	if pub.logs[0].Count != 3 || pub.logs[0].Level != "error" {
		t.Fatalf("unexpected entry %+v", pub.logs[0])
	}
	if pub.logs[0].Fields["symbol"] != "AAPL" {
		t.Fatalf("fields = %v", pub.logs[0].Fields)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	if _, err := New(&Config{Level: "loud", Output: "stdout"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestErrorFieldNil(t *testing.T) {
	f := Error(nil)
	if f.Key != "error" || f.Value != nil {
		t.Fatalf("got %q=%v", f.Key, f.Value)
	}
}

func TestCollectorMinLevel(t *testing.T) {
	pub := &fakePublisher{}
	l := Nop()
	l.AddCollector(&CollectionConfig{
		TimeInterval: time.Hour,
		MinLevel:     "warn",
		Topic:        "optsignal.logs",
		Publisher:    pub,
	})
	l.Warn("flush retried", String("backend", "kafka"))
	l.Warn("flush retried", String("backend", "clickhouse"))
	l.Info("ignored")
	l.RemoveCollector()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.logs) != 2 {
		t.Fatalf("expected 2 distinct warnings, got %d", len(pub.logs))
	}
}

func TestCollectorFlushesAtThreshold(t *testing.T) {
	pub := &fakePublisher{}
	c := NewLogCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.Add("error", "a", nil, "x.go:1")
	c.Add("error", "b", nil, "x.go:2")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		pub.mu.Lock()
		n := len(pub.logs)
		pub.mu.Unlock()
		if n == 2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("threshold flush did not happen")
}
