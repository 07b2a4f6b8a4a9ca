package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	"OptSignal/pkg/metrics"
)

type fakeStorage struct {
	mu     sync.Mutex
	fails  int
	stored []*domrepo.BarMessage
}

func (f *fakeStorage) Init(context.Context) error { return nil }

func (f *fakeStorage) Store(ctx context.Context, b *domrepo.BarMessage) error {
	return f.StoreBatch(ctx, []*domrepo.BarMessage{b})
}

func (f *fakeStorage) StoreBatch(_ context.Context, bars []*domrepo.BarMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("clickhouse unavailable")
	}
	f.stored = append(f.stored, bars...)
	return nil
}

func (f *fakeStorage) Health(context.Context) error { return nil }

func (f *fakeStorage) Close() error { return nil }

type fakePublisher struct {
	batches [][]*domrepo.BarMessage
}

func (f *fakePublisher) Publish(ctx context.Context, b *domrepo.BarMessage) error {
	return f.PublishBatch(ctx, []*domrepo.BarMessage{b})
}

func (f *fakePublisher) PublishBatch(_ context.Context, bars []*domrepo.BarMessage) error {
	f.batches = append(f.batches, bars)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

var session = time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

func tick(offset time.Duration, price, volume float64) *models.Tick {
	return &models.Tick{Symbol: "AAPL", Timestamp: session.Add(offset).Unix(), Price: price, Volume: volume}
}

func TestBarAggregator(t *testing.T) {
	a := NewBarAggregator()
	a.Add(tick(5*time.Second, 100, 1))
	a.Add(tick(10*time.Minute, 103, 2))
	a.Add(tick(30*time.Minute, 99, 1))
	a.Add(tick(70*time.Minute, 101, 4))
	a.Add(tick(20*time.Minute, 500, 9)) // late for 1h, same session for 1d

	if a.Late() != 1 {
		t.Fatalf("late = %d, want 1", a.Late())
	}
	if a.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", a.Pending())
	}

	msgs := a.Drain()
	if len(msgs) != 3 {
		t.Fatalf("drained %d bars, want 3", len(msgs))
	}
	daily, h10, h11 := msgs[0], msgs[1], msgs[2]
	if daily.Timeframe != domrepo.TF1d || h10.Timeframe != domrepo.TF1h || h11.Timeframe != domrepo.TF1h {
		t.Fatalf("unexpected order: %s %s %s", daily.Timeframe, h10.Timeframe, h11.Timeframe)
	}

	b := h10.Bar
	if !b.Timestamp.Equal(session) || b.Open != 100 || b.High != 103 || b.Low != 99 || b.Close != 99 || b.Volume != 4 {
		t.Fatalf("10:00 bar = %+v", b)
	}
	if !h11.Bar.Timestamp.Equal(session.Add(time.Hour)) || h11.Bar.Open != 101 || h11.Bar.Volume != 4 {
		t.Fatalf("11:00 bar = %+v", h11.Bar)
	}
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	if !daily.Bar.Timestamp.Equal(day) || daily.Bar.High != 500 || daily.Bar.Close != 500 || daily.Bar.Volume != 17 {
		t.Fatalf("daily bar = %+v", daily.Bar)
	}

	if a.Pending() != 0 || len(a.Drain()) != 0 {
		t.Fatalf("drain should leave nothing pending")
	}
	a.Add(tick(80*time.Minute, 102, 1))
	if a.Pending() != 2 {
		t.Fatalf("an update re-dirties the open bars, pending = %d", a.Pending())
	}
}

func TestBarProcessorRetriesFailedFlush(t *testing.T) {
	store := &fakeStorage{fails: 1}
	p := NewBarProcessor(nil, store, metrics.Nop{}, nil, "clickhouse", 100, time.Hour)
	ctx := context.Background()

	_ = p.Process(ctx, tick(time.Minute, 100, 1))
	if err := p.Flush(ctx); err == nil {
		t.Fatalf("expected flush error")
	}
	_ = p.Process(ctx, tick(2*time.Minute, 101, 1))
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(store.stored) != 2 {
		t.Fatalf("stored %d bars, want 2", len(store.stored))
	}
	for _, m := range store.stored {
		if m.Bar.Close != 101 || m.Bar.Volume != 2 {
			t.Fatalf("stale snapshot stored: %+v", m.Bar)
		}
	}
}

func TestBarProcessorFlushesOnBatchSize(t *testing.T) {
	pub := &fakePublisher{}
	p := NewBarProcessor(pub, nil, metrics.Nop{}, nil, "kafka", 2, time.Hour)
	if err := p.Process(context.Background(), tick(0, 100, 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 {
		t.Fatalf("expected one batch of 2 bars, got %v", pub.batches)
	}
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(pub.batches) != 1 {
		t.Fatalf("close should have nothing left to flush")
	}
}

func TestBarProcessorUnknownBackend(t *testing.T) {
	p := NewBarProcessor(nil, nil, metrics.Nop{}, nil, "s3", 100, time.Hour)
	_ = p.Process(context.Background(), tick(0, 100, 1))
	if err := p.Flush(context.Background()); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestKafkaBarsHandler(t *testing.T) {
	store := &fakeStorage{}
	h := NewKafkaBarsHandler("bars", store, metrics.Nop{})
	if h.Topic() != "bars" {
		t.Fatalf("topic %q", h.Topic())
	}

	good, _ := json.Marshal(domrepo.BarMessage{
		Symbol:    "AAPL",
		Timeframe: domrepo.TF1h,
		Bar:       models.PriceBar{Timestamp: session, Open: 1, High: 2, Low: 1, Close: 2, Volume: 5},
	})
	if err := h.Handle(context.Background(), good); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.stored) != 1 || store.stored[0].Bar.Volume != 5 {
		t.Fatalf("stored %+v", store.stored)
	}

	for name, payload := range map[string]string{
		"malformed": `{"symbol":`,
		"no symbol": `{"tf":"1h","bar":{"timestamp":"2024-06-03T10:00:00Z"}}`,
		"bad tf":    `{"symbol":"AAPL","tf":"5m","bar":{"timestamp":"2024-06-03T10:00:00Z"}}`,
		"no time":   `{"symbol":"AAPL","tf":"1d","bar":{}}`,
	} {
		if err := h.Handle(context.Background(), []byte(payload)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
