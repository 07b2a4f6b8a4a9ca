package repository

import (
	"math"
	"strings"
	"testing"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
)

func TestSchema(t *testing.T) {
	stmts := Schema("optsignal")
	if len(stmts) != 5 {
		t.Fatalf("got %d statements, want 5", len(stmts))
	}
	for _, want := range []string{"optsignal.bars_1d", "optsignal.bars_1h", "optsignal.option_features", "optsignal.backtests"} {
		found := false
		for _, s := range stmts {
			if strings.Contains(s, want) {
				found = true
			}
		}
		if !found {
			t.Fatalf("no DDL for %s", want)
		}
	}
	if !strings.Contains(stmts[1], "ReplacingMergeTree(updated_at)") {
		t.Fatalf("bar table should be a ReplacingMergeTree: %s", stmts[1])
	}
}

func TestBarRows(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	version := time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)
	msgs := []*domrepo.BarMessage{
		{Symbol: "AAPL", Timeframe: domrepo.TF1d, Bar: models.PriceBar{Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}},
		{Symbol: "AAPL", Timeframe: domrepo.TF1h, Bar: models.PriceBar{Timestamp: ts, Close: 1}},
		{Symbol: "MSFT", Timeframe: domrepo.TF1d, Bar: models.PriceBar{Timestamp: ts, Close: 3}},
		nil,
		{Timeframe: domrepo.TF1d},
	}
	rows, err := barRows(msgs, version)
	if err != nil {
		t.Fatalf("barRows: %v", err)
	}
	if len(rows[tableBars1d]) != 2 || len(rows[tableBars1h]) != 1 {
		t.Fatalf("unexpected grouping: %v", rows)
	}
	first := rows[tableBars1d][0]
	if len(first) != len(barColumns) || first[0] != "AAPL" || first[5] != 1.5 || first[7] != version {
		t.Fatalf("unexpected row %v", first)
	}

	if _, err := barRows([]*domrepo.BarMessage{{Symbol: "AAPL", Timeframe: "5m"}}, version); err == nil {
		t.Fatalf("expected unsupported timeframe error")
	}
}

func TestFeatureAndBacktestRows(t *testing.T) {
	set := &models.FeatureSet{
		Underlying:    "AAPL",
		ReferenceTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Rows: []models.OptionFeatureRow{
			{Type: models.OptionCall, Strike: 100, IVBucket: models.IVCheap},
			{Type: models.OptionPut, Strike: 90, IVBucket: models.IVExpensive},
		},
	}
	rows := featureRows("run-1", set)
	if len(rows) != 2 || len(rows[0]) != len(featureColumns) {
		t.Fatalf("unexpected feature rows %v", rows)
	}
	if rows[1][3] != "put" || rows[1][9] != "Expensive" {
		t.Fatalf("unexpected put row %v", rows[1])
	}

	res := &models.BacktestResult{Symbol: "AAPL", Bars: 4, Final: models.BacktestState{Cash: 9907, Shares: 1}, Trades: make([]models.Trade, 3)}
	row := backtestRow("run-1", res, time.Unix(0, 0))
	if len(row) != len(backtestColumns) || row[2] != uint32(4) || row[8] != uint32(3) {
		t.Fatalf("unexpected backtest row %v", row)
	}
}

func TestSignalEvents(t *testing.T) {
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	series := &models.PriceSeries{
		Symbol:  "AAPL",
		Bars:    []models.PriceBar{{Timestamp: ts, Close: 1}, {Timestamp: ts.Add(24 * time.Hour), Close: 2}, {Timestamp: ts.Add(48 * time.Hour), Close: 3}},
		EVWMA:   []float64{math.NaN(), 1.5, 2},
		Signals: []models.Signal{models.SignalHold, models.SignalBuy, models.SignalSell},
	}
	events := signalEvents(series)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Signal != models.SignalBuy || events[0].Symbol != "AAPL" || events[0].EVWMA == nil || *events[0].EVWMA != 1.5 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].MACD != nil {
		t.Fatalf("missing column should render nil")
	}
}

func TestFeatureEvents(t *testing.T) {
	set := &models.FeatureSet{Underlying: "AAPL", LatestClose: 100, Rows: []models.OptionFeatureRow{{Strike: 100}, {Strike: 110}}}
	ev := featureEvents("run-1", set)
	if len(ev) != 2 || ev[1].Strike != 110 || ev[1].RunID != "run-1" || ev[1].LatestClose != 100 {
		t.Fatalf("unexpected events %+v", ev)
	}
	if featureEvents("run-1", nil) != nil {
		t.Fatalf("nil set should yield nil")
	}
}
