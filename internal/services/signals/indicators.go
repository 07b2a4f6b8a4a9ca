package signals

import "math"

// EVWMA returns the running volume-weighted average close. Bars before the
// first non-zero volume are NaN.
func EVWMA(closes, volumes []float64) []float64 {
	out := make([]float64, len(closes))
	var pv, v float64
	for i := range closes {
		pv += closes[i] * volumes[i]
		v += volumes[i]
		if v == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = pv / v
	}
	return out
}

// EMA returns the exponential moving average of xs whose first value is
// emitted at index start, seeded with the mean of the period values ending
// there. Indices before start are NaN; so is everything if the seed window
// is not fully defined.
func EMA(xs []float64, period, start int) []float64 {
	out := nanSlice(len(xs))
	if period <= 0 || start < period-1 || start >= len(xs) {
		return out
	}
	var seed float64
	for i := start - period + 1; i <= start; i++ {
		if math.IsNaN(xs[i]) {
			return out
		}
		seed += xs[i]
	}
	k := 2 / float64(period+1)
	prev := seed / float64(period)
	out[start] = prev
	for i := start + 1; i < len(xs); i++ {
		prev = prev + k*(xs[i]-prev)
		out[i] = prev
	}
	return out
}

// MACD returns the MACD line and its signal line. Both EMAs start at
// index slow-1 and the signal line at slow+signal-2; the line is reported
// from that same index.
func MACD(closes []float64, fast, slow, signal int) ([]float64, []float64) {
	first := slow - 1
	fastEMA := EMA(closes, fast, first)
	slowEMA := EMA(closes, slow, first)
	line := nanSlice(len(closes))
	for i := first; i < len(closes); i++ {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	report := first + signal - 1
	sig := EMA(line, signal, report)
	for i := 0; i < report && i < len(line); i++ {
		line[i] = math.NaN()
	}
	return line, sig
}

// Oscillator returns the position of each close inside its trailing window
// range, smoothed by a trailing mean over the same window. A flat range is
// NaN, and so is any smoothed value whose window contains one.
// The first value appears at index 2*window-2, i.e. 26 for window 14, while
// Generate still requires MinHistory (2*window) bars.
func Oscillator(closes []float64, window int) []float64 {
	norm := nanSlice(len(closes))
	for i := window - 1; i < len(closes); i++ {
		lo, hi := closes[i], closes[i]
		for j := i - window + 1; j < i; j++ {
			lo = math.Min(lo, closes[j])
			hi = math.Max(hi, closes[j])
		}
		if hi == lo {
			continue
		}
		norm[i] = (closes[i] - lo) / (hi - lo)
	}
	return rollingMean(norm, window)
}

func rollingMean(xs []float64, window int) []float64 {
	out := nanSlice(len(xs))
	for i := window - 1; i < len(xs); i++ {
		var sum float64
		for j := i - window + 1; j <= i; j++ {
			sum += xs[j]
		}
		// NaN propagates through the sum.
		out[i] = sum / float64(window)
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
