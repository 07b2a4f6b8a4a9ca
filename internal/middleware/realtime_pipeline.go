package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
)

// ErrBacklogFull is returned when a tick is dropped because the retry
// backlog is at capacity.
var ErrBacklogFull = errors.New("pipeline backlog full")

const (
	minFlushBackoff = 50 * time.Millisecond
	maxFlushBackoff = 2 * time.Second
)

// Proc is the downstream the pipeline feeds, normally the bar processor.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// RealtimePipeline sits between the tick stream and the bar processor.
// Ticks that fail downstream go to a FIFO backlog; while the backlog is
// non-empty new ticks queue behind it so the processor sees them in
// arrival order.
type RealtimePipeline struct {
	proc      Proc
	metrics   domrepo.Metrics
	maxRPS    int
	capacity  int
	transform func(*models.Tick) *models.Tick

	mu       sync.Mutex
	backlog  []*models.Tick
	lastSeen map[string]time.Time

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS caps accepted ticks per second per symbol. Throttled ticks are
// dropped and their volume is missing from the bar. 0 disables it.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize caps the retry backlog.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// WithTransform rewrites each tick after validation. The result is
// validated again.
func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

// CanonicalSymbol upper-cases and trims the tick symbol so stream and API
// spellings land in the same bars.
func CanonicalSymbol(t *models.Tick) *models.Tick {
	s := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if s == t.Symbol {
		return t
	}
	c := *t
	c.Symbol = s
	return &c
}

func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		capacity: 1000,
		lastSeen: make(map[string]time.Time),
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the backlog flusher until ctx ends or Stop is called.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.wg.Add(1)
	go p.flushLoop(ctx)
	p.signal()
}

// Stop halts the flusher. The backlog is kept.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		p.wg.Wait()
	}
}

// Process validates one tick and hands it downstream, or to the backlog
// when downstream is failing.
func (p *RealtimePipeline) Process(ctx context.Context, t *models.Tick) error {
	start := time.Now()
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if p.transform != nil {
		if t = p.transform(t); validateTick(t) != nil {
			p.metrics.RecordError("pipeline_transform_invalid")
			return fmt.Errorf("transform produced an invalid tick: %w", validateTick(t))
		}
	}
	if !p.allow(t.Symbol, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	p.mu.Lock()
	behind := len(p.backlog) > 0
	p.mu.Unlock()
	if behind {
		return p.enqueue(t)
	}

	if err := p.proc.Process(ctx, t); err != nil {
		p.metrics.RecordError("pipeline_process")
		if qerr := p.enqueue(t); qerr != nil {
			return fmt.Errorf("pipeline downstream: %w (tick dropped)", err)
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

// Buffered reports the ticks waiting in the backlog.
func (p *RealtimePipeline) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.backlog)
}

func (p *RealtimePipeline) enqueue(t *models.Tick) error {
	p.mu.Lock()
	if len(p.backlog) >= p.capacity {
		p.mu.Unlock()
		p.metrics.RecordError("pipeline_buffer_full")
		return ErrBacklogFull
	}
	p.backlog = append(p.backlog, t)
	p.mu.Unlock()
	p.signal()
	return nil
}

func (p *RealtimePipeline) signal() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *RealtimePipeline) flushLoop(ctx context.Context) {
	defer p.wg.Done()
	backoff := minFlushBackoff
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		case <-timer.C:
		}

		if p.flush(ctx) {
			backoff = minFlushBackoff
		} else {
			p.metrics.RecordError("pipeline_flush")
			backoff = min(backoff*2, maxFlushBackoff)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(backoff)
	}
}

// flush replays the backlog head first and stops at the first failure.
func (p *RealtimePipeline) flush(ctx context.Context) bool {
	for ctx.Err() == nil {
		p.mu.Lock()
		if len(p.backlog) == 0 {
			p.backlog = nil
			p.mu.Unlock()
			return true
		}
		head := p.backlog[0]
		p.mu.Unlock()

		if err := p.proc.Process(ctx, head); err != nil {
			return false
		}
		p.mu.Lock()
		p.backlog[0] = nil
		p.backlog = p.backlog[1:]
		p.mu.Unlock()
	}
	return true
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[symbol]; ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}

func validateTick(t *models.Tick) error {
	switch {
	case t == nil:
		return errors.New("tick nil")
	case t.Symbol == "":
		return errors.New("symbol empty")
	case t.Timestamp <= 0:
		return errors.New("timestamp invalid")
	case !(t.Price > 0) || math.IsInf(t.Price, 0):
		return errors.New("price must be positive and finite")
	case !(t.Volume >= 0) || math.IsInf(t.Volume, 0):
		return errors.New("volume must be non-negative and finite")
	}
	return nil
}
