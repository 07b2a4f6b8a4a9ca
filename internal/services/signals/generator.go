// Package signals turns a price/volume series into a discrete buy/sell/hold
// stream from VWAP, MACD and a close-based stochastic oscillator.
package signals

import (
	"math"

	"OptSignal/internal/domain/models"
)

const (
	FastPeriod       = 12
	SlowPeriod       = 26
	SignalPeriod     = 9
	OscillatorWindow = 14

	// MinHistory is the shortest series accepted by Generate.
	MinHistory = 2 * OscillatorWindow

	BuyThreshold  = 0.2
	SellThreshold = 0.8
)

// Generate returns a copy of series carrying the indicator columns and the
// per-bar signal. The input is not modified.
func Generate(series *models.PriceSeries) (*models.PriceSeries, error) {
	n := series.Len()
	if n < MinHistory {
		return nil, &models.InsufficientHistoryError{Required: MinHistory, Got: n}
	}

	bars := make([]models.PriceBar, n)
	copy(bars, series.Bars)
	closes := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	out := &models.PriceSeries{
		Symbol:     series.Symbol,
		Bars:       bars,
		EVWMA:      EVWMA(closes, volumes),
		Oscillator: Oscillator(closes, OscillatorWindow),
		Signals:    make([]models.Signal, n),
	}
	out.MACD, out.MACDSignal = MACD(closes, FastPeriod, SlowPeriod, SignalPeriod)

	for i := range bars {
		out.Signals[i] = Decide(closes[i], out.EVWMA[i], out.MACD[i], out.MACDSignal[i], out.Oscillator[i])
	}
	return out, nil
}

// Decide applies the signal rule to one bar's values.
func Decide(close, evwma, macd, macdSignal, osc float64) models.Signal {
	for _, v := range []float64{close, evwma, macd, macdSignal, osc} {
		if math.IsNaN(v) {
			return models.SignalHold
		}
	}
	switch {
	case macd > macdSignal && close > evwma && osc < BuyThreshold:
		return models.SignalBuy
	case macd < macdSignal && close < evwma && osc > SellThreshold:
		return models.SignalSell
	default:
		return models.SignalHold
	}
}

// Summarize counts the decisions of a generated series.
func Summarize(series *models.PriceSeries) models.SignalSummary {
	s := models.SignalSummary{Bars: series.Len()}
	for _, sig := range series.Signals {
		switch sig {
		case models.SignalBuy:
			s.Buys++
		case models.SignalSell:
			s.Sells++
		}
	}
	if n := len(series.Signals); n > 0 {
		s.Last = series.Signals[n-1]
		s.LastTime = series.Bars[n-1].Timestamp
	}
	return s
}
