package usecase

import (
	"context"
	"fmt"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	domsvc "OptSignal/internal/domain/service"
	"OptSignal/internal/services/backtest"
	"OptSignal/internal/services/features"
	"OptSignal/internal/services/greeks"
	"OptSignal/internal/services/signals"
	"OptSignal/pkg/cache"
	applogger "OptSignal/pkg/logger"
	"OptSignal/pkg/metrics"

	"github.com/google/uuid"
)

// StrategyUseCase loads market data, runs the pricing, feature, signal and
// backtest engines, and hands results to the configured sinks.
type StrategyUseCase struct {
	bars      domrepo.BarStore
	chains    domsvc.ChainProvider
	predictor domsvc.PricePredictor
	sink      domrepo.ResultSink
	events    domrepo.EventPublisher
	cache     cache.Service
	cacheTTL  time.Duration
	metrics   domrepo.Metrics
	log       *applogger.Logger

	initialCapital float64
	riskFreeRate   float64
	featureWorkers int
	now            func() time.Time
}

// StrategyOption configures StrategyUseCase.
type StrategyOption func(*StrategyUseCase)

// WithResultSink persists feature sets and backtests.
func WithResultSink(s domrepo.ResultSink) StrategyOption {
	return func(uc *StrategyUseCase) { uc.sink = s }
}

// WithEventPublisher publishes signal bars and feature rows.
func WithEventPublisher(p domrepo.EventPublisher) StrategyOption {
	return func(uc *StrategyUseCase) { uc.events = p }
}

// WithPredictor enables Predict.
func WithPredictor(p domsvc.PricePredictor) StrategyOption {
	return func(uc *StrategyUseCase) { uc.predictor = p }
}

// WithCache caches backtest results for ttl.
func WithCache(c cache.Service, ttl time.Duration) StrategyOption {
	return func(uc *StrategyUseCase) {
		uc.cache = c
		uc.cacheTTL = ttl
	}
}

func WithStrategyLogger(l *applogger.Logger) StrategyOption {
	return func(uc *StrategyUseCase) {
		if l != nil {
			uc.log = l
		}
	}
}

func WithStrategyMetrics(m domrepo.Metrics) StrategyOption {
	return func(uc *StrategyUseCase) {
		if m != nil {
			uc.metrics = m
		}
	}
}

// WithStrategyParams sets the backtest capital, the Greeks rate and the
// feature fan-out.
func WithStrategyParams(initialCapital, riskFreeRate float64, featureWorkers int) StrategyOption {
	return func(uc *StrategyUseCase) {
		uc.initialCapital = initialCapital
		uc.riskFreeRate = riskFreeRate
		uc.featureWorkers = featureWorkers
	}
}

// WithClock replaces time.Now as the default reference time.
func WithClock(now func() time.Time) StrategyOption {
	return func(uc *StrategyUseCase) { uc.now = now }
}

func NewStrategyUseCase(bars domrepo.BarStore, chains domsvc.ChainProvider, opts ...StrategyOption) *StrategyUseCase {
	uc := &StrategyUseCase{
		bars:           bars,
		chains:         chains,
		metrics:        metrics.Nop{},
		log:            applogger.Nop(),
		cacheTTL:       5 * time.Minute,
		initialCapital: backtest.DefaultInitialCapital,
		riskFreeRate:   features.DefaultRiskFreeRate,
		featureWorkers: 1,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// SeriesParams selects the latest N bars of a symbol.
type SeriesParams struct {
	Symbol    string
	N         int
	Timeframe domrepo.Timeframe
}

// FeaturesParams adds the reference time; zero means now.
type FeaturesParams struct {
	SeriesParams
	RefTime time.Time
}

// BacktestParams adds the trade log switch.
type BacktestParams struct {
	SeriesParams
	Trades bool
}

// Greeks prices one option.
func (uc *StrategyUseCase) Greeks(spot, strike, expiry, rate, vol float64) (models.Greeks, error) {
	return greeks.PriceAndGreeks(spot, strike, expiry, rate, vol)
}

// Series loads the bars of p as a series.
func (uc *StrategyUseCase) Series(ctx context.Context, p SeriesParams) (*models.PriceSeries, error) {
	if p.Symbol == "" {
		return nil, &models.InvalidInputError{Field: "symbol", Reason: "required"}
	}
	bars, err := uc.bars.GetLatestNBars(ctx, p.Symbol, p.N, p.Timeframe)
	if err != nil {
		uc.metrics.RecordError("bar_store")
		return nil, fmt.Errorf("load bars %s: %w", p.Symbol, err)
	}
	return models.NewPriceSeries(p.Symbol, bars), nil
}

// Signals generates the indicator and signal columns and publishes the
// non-hold bars.
func (uc *StrategyUseCase) Signals(ctx context.Context, p SeriesParams) (*models.PriceSeries, error) {
	start := time.Now()
	series, err := uc.Series(ctx, p)
	if err != nil {
		return nil, err
	}
	out, err := signals.Generate(series)
	if err != nil {
		return nil, err
	}
	uc.metrics.RecordLatency("signals", time.Since(start).Seconds())
	if n := out.Len(); n > 0 {
		uc.metrics.RecordSignal(p.Symbol, out.Signals[n-1])
	}
	if uc.events != nil {
		if err := uc.events.PublishSignals(ctx, out); err != nil {
			uc.metrics.RecordError("publish_signals")
			uc.log.Warn("publish signals failed", applogger.String("symbol", p.Symbol), applogger.Error(err))
		}
	}
	return out, nil
}

// Features builds the feature set of the current chain against the latest
// close. Contract failures are logged and counted, never fatal.
func (uc *StrategyUseCase) Features(ctx context.Context, p FeaturesParams) (*models.FeatureSet, error) {
	start := time.Now()
	if uc.chains == nil {
		return nil, fmt.Errorf("chain provider not configured")
	}
	series, err := uc.Series(ctx, p.SeriesParams)
	if err != nil {
		return nil, err
	}
	chain, err := uc.chains.GetChain(ctx, p.Symbol)
	if err != nil {
		uc.metrics.RecordError("chain_provider")
		return nil, fmt.Errorf("load chain %s: %w", p.Symbol, err)
	}
	ref := p.RefTime
	if ref.IsZero() {
		ref = uc.now()
	}
	set, err := features.Build(series, chain, ref.UTC(),
		features.WithRiskFreeRate(uc.riskFreeRate),
		features.WithWorkers(uc.featureWorkers),
	)
	if err != nil {
		return nil, err
	}
	for _, f := range set.Failures {
		uc.metrics.RecordContractFailure(f.Code)
	}
	if len(set.Failures) > 0 {
		uc.log.Warn("contracts excluded from feature set",
			applogger.String("symbol", p.Symbol),
			applogger.Int("failures", len(set.Failures)),
			applogger.Int("rows", len(set.Rows)),
		)
	}
	uc.metrics.RecordLatency("features", time.Since(start).Seconds())

	if uc.sink != nil || uc.events != nil {
		runID := uuid.NewString()
		if uc.sink != nil {
			if err := uc.sink.SaveFeatures(ctx, runID, set); err != nil {
				uc.metrics.RecordError("save_features")
				uc.log.Warn("save features failed", applogger.String("run_id", runID), applogger.Error(err))
			}
		}
		if uc.events != nil {
			if err := uc.events.PublishFeatures(ctx, runID, set); err != nil {
				uc.metrics.RecordError("publish_features")
				uc.log.Warn("publish features failed", applogger.String("run_id", runID), applogger.Error(err))
			}
		}
	}
	return set, nil
}

// Backtest replays the generated signals. Results are cached per
// symbol, window and timeframe.
func (uc *StrategyUseCase) Backtest(ctx context.Context, p BacktestParams) (*models.BacktestResult, error) {
	key := cache.GenerateKeyWithParams("backtest", p.Symbol, p.N, string(p.Timeframe), p.Trades, uc.initialCapital)
	res, hit, err := cache.Remember(ctx, uc.cache, key, uc.cacheTTL, func(ctx context.Context) (models.BacktestResult, error) {
		return uc.runBacktest(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		uc.log.Debug("backtest cache hit", applogger.String("key", key))
	}
	return &res, nil
}

func (uc *StrategyUseCase) runBacktest(ctx context.Context, p BacktestParams) (models.BacktestResult, error) {
	series, err := uc.Signals(ctx, p.SeriesParams)
	if err != nil {
		return models.BacktestResult{}, err
	}
	return uc.replay(ctx, series, p.Trades)
}

// replay runs the simulator over an already generated series.
func (uc *StrategyUseCase) replay(ctx context.Context, series *models.PriceSeries, trades bool) (models.BacktestResult, error) {
	sim := backtest.NewSimulator(
		backtest.WithInitialCapital(uc.initialCapital),
		backtest.WithTradeLog(trades),
	)
	res, err := sim.Replay(series)
	if err != nil {
		return models.BacktestResult{}, err
	}
	uc.metrics.RecordPortfolioValue(series.Symbol, res.FinalValue)
	if uc.sink != nil {
		runID := uuid.NewString()
		if err := uc.sink.SaveBacktest(ctx, runID, &res); err != nil {
			uc.metrics.RecordError("save_backtest")
			uc.log.Warn("save backtest failed", applogger.String("run_id", runID), applogger.Error(err))
		}
	}
	return res, nil
}

// Predict forwards a fresh feature set to the external predictor.
func (uc *StrategyUseCase) Predict(ctx context.Context, p FeaturesParams) (*models.Prediction, error) {
	if uc.predictor == nil {
		return nil, ErrPredictorDisabled
	}
	set, err := uc.Features(ctx, p)
	if err != nil {
		return nil, err
	}
	return uc.predict(ctx, p.Symbol, set)
}

func (uc *StrategyUseCase) predict(ctx context.Context, symbol string, set *models.FeatureSet) (*models.Prediction, error) {
	start := time.Now()
	pred, err := uc.predictor.Predict(ctx, symbol, set)
	if err != nil {
		uc.metrics.RecordError("predictor")
		return nil, err
	}
	uc.metrics.RecordLatency("predict", time.Since(start).Seconds())
	return &pred, nil
}
