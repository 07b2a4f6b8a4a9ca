package models

import (
	"time"

	"OptSignal/pkg/util"
)

// Requests for strategy HTTP endpoints. Defined in domain for consistency and reuse.

type BarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	N      int    `query:"n" json:"n" default:"250" validate:"gte=1,lte=5000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"timeframe"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
}

type SeriesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	N      int    `query:"n" json:"n" default:"250" validate:"gte=28,lte=5000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"timeframe"`
}

type FeaturesRequest struct {
	Symbol  string `query:"symbol" json:"symbol" validate:"required,ticker"`
	N       int    `query:"n" json:"n" default:"30" validate:"gte=1,lte=5000"`
	TF      string `query:"tf" json:"tf" default:"1d" validate:"timeframe"`
	RefTime string `query:"ref_time" json:"ref_time"`
}

type BacktestRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required,ticker"`
	N      int    `query:"n" json:"n" default:"250" validate:"gte=28,lte=5000"`
	TF     string `query:"tf" json:"tf" default:"1d" validate:"timeframe"`
	Trades bool   `query:"trades" json:"trades"`
}

type GreeksRequest struct {
	Spot       float64 `json:"spot" validate:"required"`
	Strike     float64 `json:"strike" validate:"required"`
	Expiry     float64 `json:"expiry_years"`
	Rate       float64 `json:"rate" default:"0.01"`
	Volatility float64 `json:"volatility"`
}

type BackfillRequest struct {
	Symbol string `json:"symbol" validate:"required,ticker"`
	From   string `json:"from" validate:"required"`
	To     string `json:"to"`
	TF     string `json:"tf" default:"1d" validate:"timeframe"`
}

type BacktestJobRequest struct {
	Symbol string `json:"symbol" validate:"required,ticker"`
	N      int    `json:"n" default:"250" validate:"gte=28,lte=5000"`
	TF     string `json:"tf" default:"1d" validate:"timeframe"`
}

type JobIDRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

// SignalRow is the transport form of one bar of a generated series.
// Undefined indicator values are null.
type SignalRow struct {
	Timestamp  time.Time `json:"timestamp"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	EVWMA      *float64  `json:"evwma"`
	MACD       *float64  `json:"macd"`
	MACDSignal *float64  `json:"macd_signal"`
	Oscillator *float64  `json:"oscillator"`
	Signal     Signal    `json:"signal"`
}

// SignalRows renders a generated series row by row. Columns that were not
// computed render as null.
func SignalRows(s *PriceSeries) []SignalRow {
	at := func(col []float64, i int) *float64 {
		if i >= len(col) {
			return nil
		}
		return util.FiniteOrNil(col[i])
	}
	if s == nil {
		return nil
	}
	rows := make([]SignalRow, len(s.Bars))
	for i, b := range s.Bars {
		rows[i] = SignalRow{
			Timestamp:  b.Timestamp,
			Close:      b.Close,
			Volume:     b.Volume,
			EVWMA:      at(s.EVWMA, i),
			MACD:       at(s.MACD, i),
			MACDSignal: at(s.MACDSignal, i),
			Oscillator: at(s.Oscillator, i),
		}
		if i < len(s.Signals) {
			rows[i].Signal = s.Signals[i]
		}
	}
	return rows
}

// BacktestJob is the status record of an asynchronous backtest.
type BacktestJob struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	N         int             `json:"n"`
	TF        string          `json:"tf"`
	Status    string          `json:"status"`
	Error     string          `json:"error,omitempty"`
	Result    *BacktestResult `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)
