package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"OptSignal/internal/domain/models"
	drepo "OptSignal/internal/domain/repository"
	applogger "OptSignal/pkg/logger"
)

type barKey struct {
	symbol string
	tf     drepo.Timeframe
}

type openBar struct {
	bar   models.PriceBar
	dirty bool
}

// BarAggregator folds ticks into session bars for each configured
// timeframe. It is not safe for concurrent use.
type BarAggregator struct {
	tfs     []drepo.Timeframe
	current map[barKey]*openBar
	closed  []*drepo.BarMessage
	late    int
}

func NewBarAggregator(tfs ...drepo.Timeframe) *BarAggregator {
	if len(tfs) == 0 {
		tfs = []drepo.Timeframe{drepo.TF1h, drepo.TF1d}
	}
	return &BarAggregator{tfs: tfs, current: make(map[barKey]*openBar)}
}

// Add applies t to the open bar of every timeframe. Ticks older than the
// open bucket are dropped and counted in Late.
func (a *BarAggregator) Add(t *models.Tick) {
	ts := time.Unix(t.Timestamp, 0).UTC()
	for _, tf := range a.tfs {
		key := barKey{symbol: t.Symbol, tf: tf}
		bucket := tf.Bucket(ts)
		cur := a.current[key]
		switch {
		case cur == nil:
		case bucket.Before(cur.bar.Timestamp):
			a.late++
			continue
		case bucket.After(cur.bar.Timestamp):
			if cur.dirty {
				a.closed = append(a.closed, &drepo.BarMessage{Symbol: key.symbol, Timeframe: tf, Bar: cur.bar})
			}
		default:
			b := &cur.bar
			if t.Price > b.High {
				b.High = t.Price
			}
			if t.Price < b.Low {
				b.Low = t.Price
			}
			b.Close = t.Price
			b.Volume += t.Volume
			cur.dirty = true
			continue
		}
		a.current[key] = &openBar{
			bar: models.PriceBar{
				Timestamp: bucket,
				Open:      t.Price,
				High:      t.Price,
				Low:       t.Price,
				Close:     t.Price,
				Volume:    t.Volume,
			},
			dirty: true,
		}
	}
}

// Pending is the number of bar snapshots Drain would return.
func (a *BarAggregator) Pending() int {
	n := len(a.closed)
	for _, b := range a.current {
		if b.dirty {
			n++
		}
	}
	return n
}

// Late reports how many tick/timeframe pairs were dropped as late.
func (a *BarAggregator) Late() int { return a.late }

// Drain returns closed bars and snapshots of changed open bars, ordered
// by symbol, timeframe and time, and marks everything clean.
func (a *BarAggregator) Drain() []*drepo.BarMessage {
	out := a.closed
	a.closed = nil
	for key, b := range a.current {
		if !b.dirty {
			continue
		}
		out = append(out, &drepo.BarMessage{Symbol: key.symbol, Timeframe: key.tf, Bar: b.bar})
		b.dirty = false
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		if out[i].Timeframe != out[j].Timeframe {
			return out[i].Timeframe < out[j].Timeframe
		}
		return out[i].Bar.Timestamp.Before(out[j].Bar.Timestamp)
	})
	return out
}

// Restore puts back snapshots whose write failed. A snapshot of a still
// open bar only re-marks it dirty so a newer state is never overwritten.
func (a *BarAggregator) Restore(msgs []*drepo.BarMessage) {
	for _, m := range msgs {
		cur := a.current[barKey{symbol: m.Symbol, tf: m.Timeframe}]
		if cur != nil && cur.bar.Timestamp.Equal(m.Bar.Timestamp) {
			cur.dirty = true
			continue
		}
		a.closed = append(a.closed, m)
	}
}

// BarProcessor aggregates ticks and routes bar snapshots to the configured
// backend: Kafka (consumed into ClickHouse later) or ClickHouse directly.
type BarProcessor struct {
	mu      sync.Mutex
	agg     *BarAggregator
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	log     *applogger.Logger
	backend string
	batchSz int
	flushTO time.Duration
	started bool
	done    chan struct{}
}

// NewBarProcessor creates a new BarProcessor instance.
func NewBarProcessor(
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	l *applogger.Logger,
	backend string,
	batchSz int,
	flushTO time.Duration,
) *BarProcessor {
	if l == nil {
		l = applogger.Nop()
	}
	if batchSz <= 0 {
		batchSz = 100
	}
	if flushTO <= 0 {
		flushTO = time.Second
	}
	return &BarProcessor{
		agg:     NewBarAggregator(),
		pub:     pub,
		store:   store,
		metrics: metrics,
		log:     l,
		backend: backend,
		batchSz: batchSz,
		flushTO: flushTO,
		done:    make(chan struct{}),
	}
}

// Process folds one tick into the open bars. Write failures are retried on
// the next flush, so Process never asks the caller to resend the tick.
func (p *BarProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}
	p.mu.Lock()
	p.agg.Add(t)
	full := p.agg.Pending() >= p.batchSz
	p.mu.Unlock()

	if full {
		_ = p.Flush(ctx)
	}
	return nil
}

// Start flushes on a timer until ctx is done.
func (p *BarProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.flushTO)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = p.Flush(ctx)
			}
		}
	}()
}

// Flush writes every pending snapshot.
func (p *BarProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	msgs := p.agg.Drain()
	p.mu.Unlock()
	if len(msgs) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, msgs)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, msgs)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.mu.Lock()
		p.agg.Restore(msgs)
		p.mu.Unlock()
		p.metrics.RecordError("flush_bars")
		p.log.Warn("bar flush failed",
			applogger.String("backend", p.backend),
			applogger.Int("bars", len(msgs)),
			applogger.Error(err),
		)
		return fmt.Errorf("flush bars: %w", err)
	}

	for _, m := range msgs {
		p.metrics.RecordMessageSent(p.backend, m.Symbol)
	}
	p.metrics.RecordLatency("flush_bars", time.Since(start).Seconds())
	return nil
}

// Close stops the timer loop and writes what is left.
func (p *BarProcessor) Close(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		select {
		case <-p.done:
		case <-ctx.Done():
		}
	}
	return p.Flush(ctx)
}
