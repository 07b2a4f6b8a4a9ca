package backtest

import (
	"errors"
	"math"
	"testing"

	"OptSignal/internal/domain/models"
)

func seriesOf(closes []float64, signals []models.Signal) *models.PriceSeries {
	bars := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = models.PriceBar{Close: c, Volume: 1}
	}
	return models.NewPriceSeries("TEST", bars).WithSignals(signals)
}

func TestScenario(t *testing.T) {
	s := seriesOf(
		[]float64{100, 102, 98, 105},
		[]models.Signal{models.SignalBuy, models.SignalHold, models.SignalBuy, models.SignalSell},
	)
	res, err := NewSimulator(WithTradeLog(true)).Replay(s)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	// 10000-100 = 9900; -98 = 9802; +105 = 9907; 9907 + 1*105
	if res.FinalValue != 10012 {
		t.Fatalf("final value = %v, want 10012", res.FinalValue)
	}
	if res.Final.Cash != 9907 || res.Final.Shares != 1 {
		t.Fatalf("final state = %+v", res.Final)
	}
	want := []struct {
		idx    int
		side   models.TradeSide
		cash   float64
		shares int64
	}{
		{0, models.SideBuy, 9900, 1},
		{2, models.SideBuy, 9802, 2},
		{3, models.SideSell, 9907, 1},
	}
	if len(res.Trades) != len(want) {
		t.Fatalf("trades = %d, want %d", len(res.Trades), len(want))
	}
	for i, w := range want {
		tr := res.Trades[i]
		if tr.Index != w.idx || tr.Side != w.side || tr.CashAfter != w.cash || tr.SharesAfter != w.shares {
			t.Fatalf("trade %d = %+v", i, tr)
		}
	}

	v, err := Run(s)
	if err != nil || v != 10012 {
		t.Fatalf("Run = %v, %v", v, err)
	}
}

func TestAllHoldReturnsInitialCapital(t *testing.T) {
	for _, n := range []int{1, 5, 250} {
		closes := make([]float64, n)
		for i := range closes {
			closes[i] = 50 + float64(i)*0.37
		}
		v, err := Run(seriesOf(closes, make([]models.Signal, n)))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if v != DefaultInitialCapital {
			t.Fatalf("n=%d: value = %v, want %v", n, v, DefaultInitialCapital)
		}
	}
}

func TestDeterministic(t *testing.T) {
	closes := []float64{10.1, 10.3, 9.97, 10.42, 10.05, 11.2}
	sig := []models.Signal{1, 1, -1, 1, -1, -1}
	s := seriesOf(closes, sig)
	a, err := Run(s)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i := 0; i < 3; i++ {
		b, _ := Run(s)
		if a != b {
			t.Fatalf("run %d = %v, want %v", i, b, a)
		}
	}
}

func TestGuards(t *testing.T) {
	// sell with no shares, buy with no cash
	s := seriesOf([]float64{100, 60, 50}, []models.Signal{models.SignalSell, models.SignalBuy, models.SignalBuy})
	res, err := NewSimulator(WithInitialCapital(50), WithTradeLog(true)).Replay(s)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	// cash 50 > 0 buys at 60 going negative; the next buy is refused
	if res.Final.Shares != 1 || res.Final.Cash != -10 {
		t.Fatalf("final state = %+v", res.Final)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %+v", res.Trades)
	}
	if res.InitialCapital != 50 {
		t.Fatalf("initial capital = %v", res.InitialCapital)
	}
}

func TestErrors(t *testing.T) {
	_, err := Run(models.NewPriceSeries("EMPTY", nil))
	var he *models.InsufficientHistoryError
	if !errors.As(err, &he) || he.Required != 1 {
		t.Fatalf("empty series: %v", err)
	}

	s := models.NewPriceSeries("X", []models.PriceBar{{Close: 1}, {Close: 2}})
	s.Signals = []models.Signal{models.SignalBuy}
	_, err = Run(s)
	var ie *models.InvalidInputError
	if !errors.As(err, &ie) || ie.Field != "signals" {
		t.Fatalf("mismatch: %v", err)
	}
}

func TestReplayWithoutTradeLog(t *testing.T) {
	s := seriesOf([]float64{1, 2}, []models.Signal{models.SignalBuy, models.SignalSell})
	res, err := NewSimulator().Replay(s)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if res.Trades != nil {
		t.Fatalf("trade log recorded without WithTradeLog")
	}
	if res.FinalValue != 10001 {
		t.Fatalf("final value = %v", res.FinalValue)
	}
}

func TestNonFiniteCloseRejected(t *testing.T) {
	for name, closes := range map[string][]float64{
		"nan last":  {100, math.NaN()},
		"inf first": {math.Inf(1), 100},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Run(seriesOf(closes, []models.Signal{models.SignalHold, models.SignalHold}))
			var ie *models.InvalidInputError
			if !errors.As(err, &ie) || ie.Field != "close" {
				t.Fatalf("expected close InvalidInputError, got %v", err)
			}
		})
	}
}
