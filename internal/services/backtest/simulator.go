// Package backtest replays a signal-annotated price series against a
// single-share long-only strategy.
package backtest

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"OptSignal/internal/domain/models"
)

// DefaultInitialCapital is the starting cash of a replay.
const DefaultInitialCapital = 10000.0

// Option configures a Simulator.
type Option func(*Simulator)

// WithInitialCapital overrides the starting cash.
func WithInitialCapital(c float64) Option {
	return func(s *Simulator) {
		s.initialCapital = c
	}
}

// WithTradeLog makes Replay record every fill.
func WithTradeLog(enabled bool) Option {
	return func(s *Simulator) {
		s.tradeLog = enabled
	}
}

// Simulator replays signals bar by bar. It holds no state between runs and
// is safe for concurrent use.
type Simulator struct {
	initialCapital float64
	tradeLog       bool
}

// NewSimulator creates a Simulator.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{initialCapital: DefaultInitialCapital}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitialCapital returns the configured starting cash.
func (s *Simulator) InitialCapital() float64 { return s.initialCapital }

// Run returns the final portfolio value of series.
func (s *Simulator) Run(series *models.PriceSeries) (float64, error) {
	res, err := s.replay(series, false)
	if err != nil {
		return 0, err
	}
	return res.FinalValue, nil
}

// Replay returns the full result of a run, including the trade log when
// enabled.
func (s *Simulator) Replay(series *models.PriceSeries) (models.BacktestResult, error) {
	return s.replay(series, s.tradeLog)
}

func (s *Simulator) replay(series *models.PriceSeries, withTrades bool) (models.BacktestResult, error) {
	n := series.Len()
	if n == 0 {
		return models.BacktestResult{}, &models.InsufficientHistoryError{Required: 1, Got: 0}
	}
	if len(series.Signals) != n {
		return models.BacktestResult{}, &models.InvalidInputError{
			Field:  "signals",
			Value:  float64(len(series.Signals)),
			Reason: "length does not match bars",
		}
	}

	for i, bar := range series.Bars {
		if math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
			return models.BacktestResult{}, &models.InvalidInputError{
				Field:  "close",
				Value:  bar.Close,
				Reason: fmt.Sprintf("bar %d close must be finite", i),
			}
		}
	}

	cash := decimal.NewFromFloat(s.initialCapital)
	var shares int64
	var trades []models.Trade

	for i, bar := range series.Bars {
		px := decimal.NewFromFloat(bar.Close)
		var side models.TradeSide
		switch series.Signals[i] {
		case models.SignalBuy:
			if !cash.IsPositive() {
				continue
			}
			cash = cash.Sub(px)
			shares++
			side = models.SideBuy
		case models.SignalSell:
			if shares <= 0 {
				continue
			}
			cash = cash.Add(px)
			shares--
			side = models.SideSell
		default:
			continue
		}
		if withTrades {
			trades = append(trades, models.Trade{
				Index:       i,
				Timestamp:   bar.Timestamp,
				Side:        side,
				Price:       bar.Close,
				CashAfter:   cash.InexactFloat64(),
				SharesAfter: shares,
			})
		}
	}

	last := series.Bars[n-1].Close
	final := cash.Add(decimal.NewFromFloat(last).Mul(decimal.NewFromInt(shares)))
	return models.BacktestResult{
		Symbol:         series.Symbol,
		Bars:           n,
		InitialCapital: s.initialCapital,
		FinalValue:     final.InexactFloat64(),
		Final:          models.BacktestState{Cash: cash.InexactFloat64(), Shares: shares},
		LastClose:      last,
		Trades:         trades,
	}, nil
}

// Run replays series with the default initial capital.
func Run(series *models.PriceSeries) (float64, error) {
	return NewSimulator().Run(series)
}
