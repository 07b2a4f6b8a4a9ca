package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OptSignal/internal/domain/models"
	domrepo "OptSignal/internal/domain/repository"
	"OptSignal/internal/usecase"

	"github.com/labstack/echo/v4"
)

type stubBars struct{ bars []models.PriceBar }

func (s stubBars) GetBars(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.PriceBar, error) {
	return s.bars, nil
}

func (s stubBars) GetLatestNBars(_ context.Context, _ string, n int, _ domrepo.Timeframe) ([]models.PriceBar, error) {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	return s.bars[len(s.bars)-n:], nil
}

func testBars(n int) []models.PriceBar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceBar, n)
	for i := range out {
		c := 100 + 5*math.Sin(float64(i)/4)
		out[i] = models.PriceBar{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 100}
	}
	return out
}

func newTestServer(opts ...HandlerOption) *echo.Echo {
	uc := usecase.NewStrategyUseCase(stubBars{bars: testBars(60)}, nil)
	e := echo.New()
	NewStrategyEchoHandler(nil, uc, opts...).RegisterRoutes(e)
	return e
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, target, err, rec.Body.String())
	}
	if env.Status != rec.Code {
		t.Fatalf("envelope status %d != http status %d", env.Status, rec.Code)
	}
	return rec, env
}

func errorCode(t *testing.T, env envelope) string {
	t.Helper()
	var errs []struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	}
	if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) == 0 {
		t.Fatalf("decode errors: %v (%s)", err, env.Data)
	}
	return errs[0].Code
}

func TestGreeks(t *testing.T) {
	e := newTestServer()

	rec, env := do(t, e, http.MethodPost, "/api/greeks", `{"spot":100,"strike":100,"expiry_years":1,"rate":0.05,"volatility":0.2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var g models.Greeks
	if err := json.Unmarshal(env.Data, &g); err != nil {
		t.Fatalf("decode greeks: %v", err)
	}
	if math.Abs(g.CallPrice-10.4506) > 1e-3 {
		t.Fatalf("call price %v", g.CallPrice)
	}
	if g.Delta <= 0 || g.Delta >= 1 || g.PutDelta >= 0 {
		t.Fatalf("unexpected deltas %+v", g)
	}
}

func TestGreeksErrors(t *testing.T) {
	e := newTestServer()
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"expired", `{"spot":100,"strike":100,"expiry_years":0,"volatility":0.2}`, http.StatusUnprocessableEntity, models.CodeDegenerateInput},
		{"zero vol", `{"spot":100,"strike":100,"expiry_years":1,"volatility":0}`, http.StatusUnprocessableEntity, models.CodeDegenerateInput},
		{"negative spot", `{"spot":-1,"strike":100,"expiry_years":1,"volatility":0.2}`, http.StatusUnprocessableEntity, models.CodeInvalidInput},
		{"missing strike", `{"spot":100,"expiry_years":1,"volatility":0.2}`, http.StatusBadRequest, "ERR_REQUIRED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := do(t, e, http.MethodPost, "/api/greeks", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if got := errorCode(t, env); got != tt.code {
				t.Fatalf("code %q, want %q", got, tt.code)
			}
		})
	}
}

func TestSignalsRendersNull(t *testing.T) {
	e := newTestServer()
	rec, env := do(t, e, http.MethodGet, "/api/signals?symbol=TEST&n=60", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Rows []map[string]interface{} `json:"rows"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Rows) != 60 {
		t.Fatalf("rows %d", len(body.Rows))
	}
	if v, ok := body.Rows[0]["macd"]; !ok || v != nil {
		t.Fatalf("warm-up macd should be null, got %v", v)
	}
	if body.Rows[59]["macd"] == nil {
		t.Fatalf("macd should be defined at the last bar")
	}
}

func TestSignalsValidation(t *testing.T) {
	e := newTestServer()
	tests := []struct {
		query string
		code  string
	}{
		{"symbol=TEST&n=5", "ERR_GTE"},
		{"n=60", "ERR_REQUIRED"},
		{"symbol=TEST&tf=5m", "ERR_TIMEFRAME"},
		{"symbol=BAD%20SYM", "ERR_TICKER"},
	}
	for _, tt := range tests {
		rec, env := do(t, e, http.MethodGet, "/api/signals?"+tt.query, "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", tt.query, rec.Code)
		}
		if got := errorCode(t, env); got != tt.code {
			t.Fatalf("%s: code %s, want %s", tt.query, got, tt.code)
		}
	}
}

func TestUnavailableDependencies(t *testing.T) {
	e := newTestServer()
	rec, _ := do(t, e, http.MethodGet, "/api/predict?symbol=TEST", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("predict status %d", rec.Code)
	}
	rec, _ = do(t, e, http.MethodPost, "/api/backtest/jobs", `{"symbol":"TEST"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("jobs status %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := newTestServer(
		WithHealthCheck("clickhouse", func(context.Context) error { return nil }),
		WithHealthCheck("redis", func(context.Context) error { return errors.New("connection refused") }),
	)
	rec, env := do(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
	var checks map[string]string
	if err := json.Unmarshal(env.Data, &checks); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if checks["clickhouse"] != "ok" || checks["redis"] != "connection refused" {
		t.Fatalf("checks %v", checks)
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{usecase.ErrJobNotFound, http.StatusNotFound},
		{usecase.ErrPredictorDisabled, http.StatusServiceUnavailable},
		{&models.EmptyChainError{}, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := toAppError(tt.err).Status; got != tt.status {
			t.Fatalf("%v: status %d, want %d", tt.err, got, tt.status)
		}
	}
}
