package repository

import (
	"context"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	pkgch "OptSignal/pkg/clickhouse"
)

var (
	featureColumns = []string{
		"run_id", "underlying", "reference_time", "type", "expiration", "strike", "moneyness",
		"days_to_expiry", "implied_volatility", "iv_bucket", "delta", "gamma", "theta", "vega", "rho",
	}
	backtestColumns = []string{
		"run_id", "symbol", "bars", "initial_capital", "final_value", "cash", "shares", "last_close", "trades", "created_at",
	}
)

// CHResultSink persists feature sets and backtest summaries.
type CHResultSink struct {
	ch  *pkgch.Client
	now func() time.Time
}

func NewCHResultSink(ch *pkgch.Client) *CHResultSink {
	return &CHResultSink{ch: ch, now: time.Now}
}

func (s *CHResultSink) SaveFeatures(ctx context.Context, runID string, set *models.FeatureSet) error {
	return s.ch.InsertRows(ctx, s.ch.Table(tableFeatures), featureColumns, featureRows(runID, set))
}

func (s *CHResultSink) SaveBacktest(ctx context.Context, runID string, res *models.BacktestResult) error {
	return s.ch.InsertRows(ctx, s.ch.Table(tableBacktests), backtestColumns, [][]interface{}{backtestRow(runID, res, s.now().UTC())})
}

func featureRows(runID string, set *models.FeatureSet) [][]interface{} {
	if set == nil {
		return nil
	}
	rows := make([][]interface{}, 0, len(set.Rows))
	for _, r := range set.Rows {
		rows = append(rows, []interface{}{
			runID, set.Underlying, set.ReferenceTime.UTC(), string(r.Type), r.Expiration.UTC(), r.Strike, r.Moneyness,
			r.DaysToExpiry, r.ImpliedVolatility, string(r.IVBucket), r.Delta, r.Gamma, r.Theta, r.Vega, r.Rho,
		})
	}
	return rows
}

func backtestRow(runID string, res *models.BacktestResult, at time.Time) []interface{} {
	return []interface{}{
		runID, res.Symbol, uint32(res.Bars), res.InitialCapital, res.FinalValue,
		res.Final.Cash, res.Final.Shares, res.LastClose, uint32(len(res.Trades)), at,
	}
}

var _ domrepo.ResultSink = (*CHResultSink)(nil)
