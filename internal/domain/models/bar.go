package models

import (
	"math"
	"time"
)

// PriceBar is one OHLCV session of the underlying.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Signal is the discrete trading decision for a bar.
type Signal int8

const (
	SignalSell Signal = -1
	SignalHold Signal = 0
	SignalBuy  Signal = 1
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	default:
		return "hold"
	}
}

// PriceSeries is a time-ascending bar sequence plus the derived columns.
// Derived slices are either nil or the same length as Bars; undefined
// values are NaN.
type PriceSeries struct {
	Symbol     string
	Bars       []PriceBar
	EVWMA      []float64
	MACD       []float64
	MACDSignal []float64
	Oscillator []float64
	Signals    []Signal
}

// NewPriceSeries builds a series without derived columns.
func NewPriceSeries(symbol string, bars []PriceBar) *PriceSeries {
	return &PriceSeries{Symbol: symbol, Bars: bars}
}

func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Closes returns the close column.
func (s *PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// LatestClose returns the close of the last bar.
func (s *PriceSeries) LatestClose() (float64, bool) {
	if s.Len() == 0 {
		return math.NaN(), false
	}
	return s.Bars[len(s.Bars)-1].Close, true
}

// WithSignals returns a copy of the bars carrying the given signal column.
func (s *PriceSeries) WithSignals(signals []Signal) *PriceSeries {
	bars := make([]PriceBar, len(s.Bars))
	copy(bars, s.Bars)
	sig := make([]Signal, len(signals))
	copy(sig, signals)
	return &PriceSeries{Symbol: s.Symbol, Bars: bars, Signals: sig}
}

// Tick is a single trade print from the live market stream.
type Tick struct {
	Symbol    string
	Timestamp int64 // unix seconds
	Price     float64
	Volume    float64
}
