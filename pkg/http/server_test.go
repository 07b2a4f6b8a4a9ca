package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error { return SuccessResponse(c, "pong") })
	e.GET("/fail", func(c echo.Context) error { return UnprocessableError("ERR_EMPTY_CHAIN", "", "no contracts") })
}

func TestServerErrorEnvelope(t *testing.T) {
	s := NewServer(pingHandler{}, WithMetricsPath(""))

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/nope", http.StatusNotFound, "ERR_NOT_FOUND"},
		{"/fail", http.StatusUnprocessableEntity, "ERR_EMPTY_CHAIN"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.status {
			t.Fatalf("%s: status %d, want %d", tc.path, rec.Code, tc.status)
		}
		var body struct {
			Status int        `json:"status"`
			Data   []AppError `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tc.path, err)
		}
		if body.Status != tc.status || len(body.Data) != 1 || body.Data[0].Code != tc.code {
			t.Fatalf("%s: body %s", tc.path, rec.Body.String())
		}
	}
}

func TestServerStartStop(t *testing.T) {
	s := NewServer(pingHandler{}, WithHost("127.0.0.1"), WithPort(0))
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
