package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"OptSignal/internal/domain/models"
	"OptSignal/internal/services/signals"
)

// ReportUseCase aggregates signals, backtest, features and prediction for
// one symbol concurrently. A failing part is reported in Errors and does
// not fail the report.
type ReportUseCase struct {
	strategy *StrategyUseCase
	timeout  time.Duration
}

func NewReportUseCase(strategy *StrategyUseCase, timeout time.Duration) *ReportUseCase {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ReportUseCase{strategy: strategy, timeout: timeout}
}

type ReportParams struct {
	SeriesParams
	// FeatureBars is the window loaded for the latest close.
	FeatureBars int
}

func (uc *ReportUseCase) Report(ctx context.Context, p ReportParams) (*models.StrategyReport, error) {
	if p.Symbol == "" {
		return nil, &models.InvalidInputError{Field: "symbol", Reason: "required"}
	}
	if p.FeatureBars <= 0 {
		p.FeatureBars = 30
	}

	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	now := uc.strategy.now().UTC()
	res := &models.StrategyReport{
		Symbol:    p.Symbol,
		Timestamp: now,
		Errors:    map[string]string{},
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 4)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		series, err := uc.strategy.Signals(ctx, p.SeriesParams)
		if err != nil {
			ch <- item{"signals", nil, err}
			ch <- item{"backtest", nil, err}
			return
		}
		sum := signals.Summarize(series)
		ch <- item{"signals", sum, nil}
		bt, err := uc.strategy.replay(ctx, series, false)
		if err != nil {
			ch <- item{"backtest", nil, err}
			return
		}
		ch <- item{"backtest", &bt, nil}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		fp := FeaturesParams{
			SeriesParams: SeriesParams{Symbol: p.Symbol, N: p.FeatureBars, Timeframe: p.Timeframe},
			RefTime:      now,
		}
		set, err := uc.strategy.Features(ctx, fp)
		ch <- item{"features", set, err}
		if uc.strategy.predictor == nil {
			return
		}
		if err != nil {
			ch <- item{"prediction", nil, err}
			return
		}
		pred, err := uc.strategy.predict(ctx, p.Symbol, set)
		ch <- item{"prediction", pred, err}
	}()

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = errorText(it.err)
			continue
		}
		switch it.name {
		case "signals":
			v := it.val.(models.SignalSummary)
			res.Signals = &v
		case "backtest":
			res.Backtest = it.val.(*models.BacktestResult)
		case "features":
			res.Features = it.val.(*models.FeatureSet)
		case "prediction":
			res.Prediction = it.val.(*models.Prediction)
		}
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

func errorText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout: " + err.Error()
	}
	return models.ErrorCode(err) + ": " + err.Error()
}
