package middleware

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"OptSignal/internal/domain/models"
	"OptSignal/pkg/metrics"
)

type fakeProc struct {
	mu   sync.Mutex
	fail bool
	got  []*models.Tick
}

func (f *fakeProc) Process(_ context.Context, t *models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("downstream down")
	}
	f.got = append(f.got, t)
	return nil
}

func (f *fakeProc) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func tick(price float64) *models.Tick {
	return &models.Tick{Symbol: "AAPL", Timestamp: 1700000000, Price: price, Volume: 1}
}

func TestPipelineValidation(t *testing.T) {
	p := NewRealtimePipeline(&fakeProc{}, metrics.Nop{})
	for name, tk := range map[string]*models.Tick{
		"nil":       nil,
		"no symbol": {Timestamp: 1, Price: 1},
		"zero time": {Symbol: "AAPL", Price: 1},
		"zero px":   {Symbol: "AAPL", Timestamp: 1},
		"nan px":    {Symbol: "AAPL", Timestamp: 1, Price: math.NaN()},
		"neg vol":   {Symbol: "AAPL", Timestamp: 1, Price: 1, Volume: -1},
	} {
		if err := p.Process(context.Background(), tk); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestPipelineBuffersAndFlushes(t *testing.T) {
	proc := &fakeProc{fail: true}
	p := NewRealtimePipeline(proc, metrics.Nop{}, WithBufferSize(4))

	if err := p.Process(context.Background(), tick(100)); err == nil {
		t.Fatalf("expected downstream error")
	}
	if p.Buffered() != 1 {
		t.Fatalf("buffered = %d, want 1", p.Buffered())
	}

	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if proc.count() != 1 {
		t.Fatalf("flushed = %d, want 1", proc.count())
	}
}

func TestPipelineQueuesBehindBacklog(t *testing.T) {
	proc := &fakeProc{fail: true}
	p := NewRealtimePipeline(proc, metrics.Nop{}, WithBufferSize(2))

	if err := p.Process(context.Background(), tick(100)); err == nil {
		t.Fatalf("expected downstream error")
	}
	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	// downstream is back but the backlog is not drained yet
	if err := p.Process(context.Background(), tick(101)); err != nil {
		t.Fatalf("queued tick: %v", err)
	}
	if err := p.Process(context.Background(), tick(102)); !errors.Is(err, ErrBacklogFull) {
		t.Fatalf("expected ErrBacklogFull, got %v", err)
	}
	if proc.count() != 0 || p.Buffered() != 2 {
		t.Fatalf("processed %d buffered %d", proc.count(), p.Buffered())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for proc.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.got) != 2 || proc.got[0].Price != 100 || proc.got[1].Price != 101 {
		t.Fatalf("replay order wrong: %d ticks", len(proc.got))
	}
}

func TestPipelineThrottle(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, metrics.Nop{}, WithMaxRPS(1))
	for i := 0; i < 5; i++ {
		if err := p.Process(context.Background(), tick(100)); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if proc.count() != 1 {
		t.Fatalf("accepted = %d, want 1", proc.count())
	}
}

func TestPipelineCanonicalSymbol(t *testing.T) {
	proc := &fakeProc{}
	p := NewRealtimePipeline(proc, metrics.Nop{}, WithTransform(CanonicalSymbol))
	in := &models.Tick{Symbol: " aapl ", Timestamp: 1700000000, Price: 100, Volume: 1}
	if err := p.Process(context.Background(), in); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if proc.count() != 1 || proc.got[0].Symbol != "AAPL" {
		t.Fatalf("got %+v", proc.got)
	}
	if in.Symbol != " aapl " {
		t.Fatalf("caller tick mutated: %q", in.Symbol)
	}
}
