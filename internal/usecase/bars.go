package usecase

import (
	"context"
	"fmt"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	domsvc "OptSignal/internal/domain/service"
	"OptSignal/internal/service/finnhub"
	applogger "OptSignal/pkg/logger"
	"OptSignal/pkg/util"
)

// BarsUseCase reads stored bars and backfills them from the vendor.
type BarsUseCase struct {
	store   domrepo.BarStore
	source  domsvc.CandleSource
	storage domrepo.Storage
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewBarsUseCase(store domrepo.BarStore, source domsvc.CandleSource, storage domrepo.Storage, metrics domrepo.Metrics, l *applogger.Logger) *BarsUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &BarsUseCase{store: store, source: source, storage: storage, metrics: metrics, log: l}
}

type GetBarsParams struct {
	Symbol    string
	N         int
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
}

type GetBarsResult struct {
	Symbol    string            `json:"symbol"`
	Timeframe string            `json:"tf"`
	Count     int               `json:"count"`
	Bars      []models.PriceBar `json:"bars"`
}

// GetBars returns a time range when From is set and the latest N bars
// otherwise.
func (uc *BarsUseCase) GetBars(ctx context.Context, p GetBarsParams) (*GetBarsResult, error) {
	if p.Symbol == "" {
		return nil, &models.InvalidInputError{Field: "symbol", Reason: "required"}
	}
	var (
		bars []models.PriceBar
		err  error
	)
	if !p.From.IsZero() {
		to := p.To
		if to.IsZero() {
			to = time.Now()
		}
		if p.From.After(to) {
			return nil, &models.InvalidInputError{Field: "from", Reason: "must be <= to"}
		}
		bars, err = uc.store.GetBars(ctx, p.Symbol, p.From, to, p.Timeframe)
		if err == nil && p.N > 0 && len(bars) > p.N {
			bars = bars[len(bars)-p.N:]
		}
	} else {
		bars, err = uc.store.GetLatestNBars(ctx, p.Symbol, p.N, p.Timeframe)
	}
	if err != nil {
		return nil, fmt.Errorf("get bars: %w", err)
	}
	return &GetBarsResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(bars),
		Bars:      bars,
	}, nil
}

type BackfillParams struct {
	Symbol    string
	From      time.Time
	To        time.Time
	Timeframe domrepo.Timeframe
}

type BackfillResult struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"tf"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Stored    int       `json:"stored"`
}

// Backfill fetches vendor candles for the aligned range and stores them.
func (uc *BarsUseCase) Backfill(ctx context.Context, p BackfillParams) (*BackfillResult, error) {
	if uc.source == nil || uc.storage == nil {
		return nil, fmt.Errorf("backfill not configured")
	}
	if p.To.IsZero() {
		p.To = time.Now()
	}
	if p.From.After(p.To) {
		return nil, &models.InvalidInputError{Field: "from", Reason: "must be <= to"}
	}
	from, to := util.AlignFromTo(p.From, p.To, string(p.Timeframe))

	start := time.Now()
	bars, err := uc.source.GetCandles(ctx, p.Symbol, finnhub.Resolution(string(p.Timeframe)), from, to)
	if err != nil {
		uc.metrics.RecordError("backfill_fetch")
		return nil, fmt.Errorf("backfill %s: %w", p.Symbol, err)
	}
	msgs := make([]*domrepo.BarMessage, 0, len(bars))
	for _, b := range bars {
		b.Timestamp = p.Timeframe.Bucket(b.Timestamp)
		msgs = append(msgs, &domrepo.BarMessage{Symbol: p.Symbol, Timeframe: p.Timeframe, Bar: b})
	}
	if err := uc.storage.StoreBatch(ctx, msgs); err != nil {
		uc.metrics.RecordError("backfill_store")
		return nil, fmt.Errorf("backfill %s: %w", p.Symbol, err)
	}
	uc.metrics.RecordLatency("backfill", time.Since(start).Seconds())
	uc.log.Info("backfill done",
		applogger.String("symbol", p.Symbol),
		applogger.String("tf", string(p.Timeframe)),
		applogger.Int("bars", len(msgs)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return &BackfillResult{Symbol: p.Symbol, Timeframe: string(p.Timeframe), From: from, To: to, Stored: len(msgs)}, nil
}
