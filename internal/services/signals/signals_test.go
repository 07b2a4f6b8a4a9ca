package signals

import (
	"errors"
	"math"
	"testing"
	"time"

	"OptSignal/internal/domain/models"
)

func wavySeries(n int) *models.PriceSeries {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/3) + 0.1*float64(i)
		bars[i] = models.PriceBar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000 + float64(i%5)*100,
		}
	}
	return models.NewPriceSeries("TEST", bars)
}

func firstDefined(xs []float64) int {
	for i, x := range xs {
		if !math.IsNaN(x) {
			return i
		}
	}
	return -1
}

func TestGenerateShortSeries(t *testing.T) {
	_, err := Generate(wavySeries(10))
	var he *models.InsufficientHistoryError
	if !errors.As(err, &he) {
		t.Fatalf("expected InsufficientHistoryError, got %v", err)
	}
	if he.Required != MinHistory || he.Got != 10 {
		t.Fatalf("unexpected error fields: %+v", he)
	}
	if models.ErrorCode(err) != models.CodeInsufficientHistory {
		t.Fatalf("unexpected code %q", models.ErrorCode(err))
	}
}

func TestGenerateColumns(t *testing.T) {
	in := wavySeries(120)
	out, err := Generate(in)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if in.Signals != nil || in.MACD != nil {
		t.Fatalf("input series was modified")
	}
	for name, col := range map[string][]float64{
		"evwma": out.EVWMA, "macd": out.MACD, "signal": out.MACDSignal, "osc": out.Oscillator,
	} {
		if len(col) != in.Len() {
			t.Fatalf("%s length %d, want %d", name, len(col), in.Len())
		}
	}
	if len(out.Signals) != in.Len() {
		t.Fatalf("signals length %d", len(out.Signals))
	}
	if got := firstDefined(out.MACD); got != 33 {
		t.Fatalf("macd first defined at %d, want 33", got)
	}
	if got := firstDefined(out.MACDSignal); got != 33 {
		t.Fatalf("macd signal first defined at %d, want 33", got)
	}
	if got := firstDefined(out.Oscillator); got != 26 {
		t.Fatalf("oscillator first defined at %d, want 26", got)
	}
	for i, v := range out.Oscillator {
		if !math.IsNaN(v) && (v < 0 || v > 1) {
			t.Fatalf("oscillator[%d]=%v out of range", i, v)
		}
	}
	for i := 0; i < 33; i++ {
		if out.Signals[i] != models.SignalHold {
			t.Fatalf("signal at %d should be hold during warm-up, got %v", i, out.Signals[i])
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	in := wavySeries(80)
	a, err := Generate(in)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, _ := Generate(in)
	for i := range a.Signals {
		if a.Signals[i] != b.Signals[i] {
			t.Fatalf("signal %d differs between runs", i)
		}
	}
}

func TestFlatSeriesHolds(t *testing.T) {
	bars := make([]models.PriceBar, 60)
	for i := range bars {
		bars[i] = models.PriceBar{Close: 50, Volume: 10}
	}
	out, err := Generate(models.NewPriceSeries("FLAT", bars))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for i, s := range out.Signals {
		if s != models.SignalHold {
			t.Fatalf("flat series signal %d = %v", i, s)
		}
	}
	if !math.IsNaN(out.Oscillator[59]) {
		t.Fatalf("flat window oscillator should be NaN")
	}
}

func TestEVWMA(t *testing.T) {
	got := EVWMA([]float64{10, 10, 20, 30}, []float64{0, 0, 1, 3})
	if !math.IsNaN(got[0]) || !math.IsNaN(got[1]) {
		t.Fatalf("zero volume prefix should be NaN: %v", got)
	}
	if got[2] != 20 {
		t.Fatalf("got[2]=%v", got[2])
	}
	if math.Abs(got[3]-27.5) > 1e-12 {
		t.Fatalf("got[3]=%v, want 27.5", got[3])
	}
}

func TestEMASeed(t *testing.T) {
	got := EMA([]float64{1, 2, 3, 4, 5}, 3, 2)
	if !math.IsNaN(got[1]) {
		t.Fatalf("expected NaN before seed")
	}
	if got[2] != 2 {
		t.Fatalf("seed = %v, want 2", got[2])
	}
	// k = 0.5
	if got[3] != 3 || got[4] != 4 {
		t.Fatalf("ema tail = %v", got[3:])
	}
}

func TestDecide(t *testing.T) {
	nan := math.NaN()
	cases := []struct {
		name                    string
		close, evwma, macd, sig float64
		osc                     float64
		want                    models.Signal
	}{
		{"buy", 101, 100, 1, 0.5, 0.1, models.SignalBuy},
		{"sell", 99, 100, 0.5, 1, 0.9, models.SignalSell},
		{"buy osc at threshold", 101, 100, 1, 0.5, 0.2, models.SignalHold},
		{"sell osc at threshold", 99, 100, 0.5, 1, 0.8, models.SignalHold},
		{"close below vwap", 99, 100, 1, 0.5, 0.1, models.SignalHold},
		{"macd equal", 101, 100, 1, 1, 0.1, models.SignalHold},
		{"nan macd", 101, 100, nan, 0.5, 0.1, models.SignalHold},
		{"nan osc", 99, 100, 0.5, 1, nan, models.SignalHold},
		{"nan vwap", 101, nan, 1, 0.5, 0.1, models.SignalHold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.close, tc.evwma, tc.macd, tc.sig, tc.osc); got != tc.want {
				t.Fatalf("Decide = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	s := wavySeries(3).WithSignals([]models.Signal{models.SignalBuy, models.SignalHold, models.SignalSell})
	sum := Summarize(s)
	if sum.Bars != 3 || sum.Buys != 1 || sum.Sells != 1 || sum.Last != models.SignalSell {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if !sum.LastTime.Equal(s.Bars[2].Timestamp) {
		t.Fatalf("last time %v", sum.LastTime)
	}
}
