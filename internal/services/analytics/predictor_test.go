package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"OptSignal/internal/domain/models"
)

func featureSet() *models.FeatureSet {
	return &models.FeatureSet{
		Underlying:    "AAPL",
		ReferenceTime: time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		LatestClose:   190,
		Rows:          []models.OptionFeatureRow{{Type: models.OptionCall, Strike: 200, ImpliedVolatility: 0.3}},
	}
}

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Symbol != "AAPL" || len(req.Features) != 1 {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"predicted_price":193.25}`))
	}))
	defer srv.Close()

	p := NewHTTPPricePredictor(srv.URL, "linear", time.Second, 0)
	got, err := p.Predict(context.Background(), "AAPL", featureSet())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if got.PredictedPrice != 193.25 || got.Model != "linear" || got.Symbol != "AAPL" {
		t.Fatalf("unexpected prediction %+v", got)
	}
}

func TestPredictRetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"predicted_price":1,"model":"ridge"}`))
	}))
	defer srv.Close()

	got, err := NewHTTPPricePredictor(srv.URL, "linear", time.Second, 2).Predict(context.Background(), "AAPL", featureSet())
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 || got.Model != "ridge" {
		t.Fatalf("calls=%d model=%q", calls, got.Model)
	}
}

func TestPredictNoRetryOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	if _, err := NewHTTPPricePredictor(srv.URL, "linear", time.Second, 3).Predict(context.Background(), "AAPL", featureSet()); err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestPredictEmptyFeatures(t *testing.T) {
	p := NewHTTPPricePredictor("http://unused", "linear", time.Second, 0)
	_, err := p.Predict(context.Background(), "AAPL", &models.FeatureSet{})
	var ec *models.EmptyChainError
	if !errors.As(err, &ec) {
		t.Fatalf("got %v, want EmptyChainError", err)
	}
}
