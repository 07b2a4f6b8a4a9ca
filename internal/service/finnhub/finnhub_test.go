package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"OptSignal/internal/domain/models"

	"github.com/gorilla/websocket"
)

func TestDecodeTicks(t *testing.T) {
	frame := []byte(`{"type":"trade","data":[{"s":"AAPL","p":189.5,"v":10,"t":1700000000123},{"s":"","p":1,"v":1,"t":1}]}`)
	ticks := decodeTicks(frame)
	if len(ticks) != 1 {
		t.Fatalf("got %d ticks, want 1", len(ticks))
	}
	if ticks[0].Symbol != "AAPL" || ticks[0].Timestamp != 1700000000 || ticks[0].Price != 189.5 {
		t.Fatalf("unexpected tick %+v", ticks[0])
	}
	if got := decodeTicks([]byte(`{"type":"ping"}`)); len(got) != 0 {
		t.Fatalf("ping frame yielded %d ticks", len(got))
	}
	if got := decodeTicks([]byte(`not json`)); len(got) != 0 {
		t.Fatalf("garbage frame yielded %d ticks", len(got))
	}
}

func TestStreamSubscribeAndRead(t *testing.T) {
	subs := make(chan string, 2)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "k" {
			http.Error(w, "no token", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var sub subscription
			if err := conn.ReadJSON(&sub); err != nil {
				return
			}
			subs <- sub.Symbol
		}
		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"trade","data":[{"s":"MSFT","p":410.2,"v":3,"t":1700000001000}]}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := NewStream("k", "ws"+strings.TrimPrefix(srv.URL, "http"), []string{"AAPL", "MSFT"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()
	if err := s.Subscribe(ctx); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if a, b := <-subs, <-subs; a != "AAPL" || b != "MSFT" {
		t.Fatalf("subscriptions = %s, %s", a, b)
	}

	ticks, _ := s.Read(ctx)
	select {
	case tk := <-ticks:
		if tk == nil || tk.Symbol != "MSFT" || tk.Timestamp != 1700000001 {
			t.Fatalf("tick = %+v", tk)
		}
	case <-ctx.Done():
		t.Fatalf("no tick received")
	}
	if !s.IsConnected() {
		t.Fatalf("stream should report connected")
	}
}

func TestGetCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stock/candle" || r.URL.Query().Get("symbol") != "AAPL" || r.URL.Query().Get("resolution") != "D" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if r.Header.Get("X-Finnhub-Token") != "k" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"s":"ok","t":[200,100],"o":[2,1],"h":[2,1],"l":[2,1],"c":[2,1],"v":[20,10]}`))
	}))
	defer srv.Close()

	r := NewREST(srv.URL, "k", time.Second)
	bars, err := r.GetCandles(context.Background(), "AAPL", "D", time.Unix(0, 0), time.Unix(300, 0))
	if err != nil {
		t.Fatalf("GetCandles: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 1 || bars[1].Close != 2 {
		t.Fatalf("bars not sorted ascending: %+v", bars)
	}
}

func TestGetCandlesNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"s":"no_data"}`))
	}))
	defer srv.Close()

	bars, err := NewREST(srv.URL, "k", time.Second).GetCandles(context.Background(), "AAPL", "D", time.Now(), time.Now())
	if err != nil || len(bars) != 0 {
		t.Fatalf("got %v, %v", bars, err)
	}
}

func TestGetChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"AAPL","data":[{"expirationDate":"2030-01-18","options":{
			"CALL":[{"strike":100,"impliedVolatility":25.0},{"strike":110,"impliedVolatility":null}],
			"PUT":[{"strike":90,"impliedVolatility":30.0}]}}]}`))
	}))
	defer srv.Close()

	chain, err := NewREST(srv.URL, "k", time.Second).GetChain(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetChain: %v", err)
	}
	cs := chain.Contracts()
	if len(cs) != 3 {
		t.Fatalf("got %d contracts, want 3", len(cs))
	}
	if cs[0].Type != models.OptionCall || cs[0].IV() != 0.25 {
		t.Fatalf("first contract %+v", cs[0])
	}
	if cs[1].ImpliedVolatility != nil {
		t.Fatalf("null IV should stay missing")
	}
	if cs[2].Type != models.OptionPut || cs[2].Strike != 90 {
		t.Fatalf("last contract %+v", cs[2])
	}
	want := time.Date(2030, 1, 18, 0, 0, 0, 0, time.UTC)
	if !cs[0].Expiration.Equal(want) {
		t.Fatalf("expiration %v, want %v", cs[0].Expiration, want)
	}
}

func TestGetChainUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewREST(srv.URL, "k", time.Second).GetChain(context.Background(), "AAPL"); err == nil {
		t.Fatalf("expected error on 429")
	}
}
