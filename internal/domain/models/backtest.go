package models

import "time"

// BacktestState is the portfolio carried through a replay.
type BacktestState struct {
	Cash   float64 `json:"cash"`
	Shares int64   `json:"shares"`
}

// TradeSide is the direction of a simulated fill.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is one simulated fill in the backtest trade log.
type Trade struct {
	Index       int       `json:"index"`
	Timestamp   time.Time `json:"timestamp"`
	Side        TradeSide `json:"side"`
	Price       float64   `json:"price"`
	CashAfter   float64   `json:"cash_after"`
	SharesAfter int64     `json:"shares_after"`
}

// BacktestResult summarizes a replay.
type BacktestResult struct {
	Symbol         string        `json:"symbol"`
	Bars           int           `json:"bars"`
	InitialCapital float64       `json:"initial_capital"`
	FinalValue     float64       `json:"final_value"`
	Final          BacktestState `json:"final"`
	LastClose      float64       `json:"last_close"`
	Trades         []Trade       `json:"trades,omitempty"`
}

// SignalSummary counts the decisions of a generated series.
type SignalSummary struct {
	Bars     int       `json:"bars"`
	Buys     int       `json:"buys"`
	Sells    int       `json:"sells"`
	Last     Signal    `json:"last"`
	LastTime time.Time `json:"last_time"`
}

// StrategyReport is a consolidated view of signals, backtest, features and
// prediction for one symbol.
// Note: no transport (json/http) concerns here.
type StrategyReport struct {
	Symbol     string
	Timestamp  time.Time
	Signals    *SignalSummary
	Backtest   *BacktestResult
	Features   *FeatureSet
	Prediction *Prediction
	Errors     map[string]string
}
