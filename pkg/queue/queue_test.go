package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type payload struct {
	Symbol string `json:"symbol"`
	N      int    `json:"n"`
}

func TestParsePayload(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
	}{
		{"struct", payload{Symbol: "AAPL", N: 250}},
		{"pointer", &payload{Symbol: "AAPL", N: 250}},
		{"map", map[string]interface{}{"symbol": "AAPL", "n": 250}},
		{"raw", json.RawMessage(`{"symbol":"AAPL","n":250}`)},
		{"bytes", []byte(`{"symbol":"AAPL","n":250}`)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParsePayload[payload](tc.in)
			if err != nil {
				t.Fatalf("ParsePayload: %v", err)
			}
			if got.Symbol != "AAPL" || got.N != 250 {
				t.Fatalf("got %+v", got)
			}
		})
	}
	if _, err := ParsePayload[payload](42); err == nil {
		t.Fatalf("expected error for int payload")
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatalf("Permanent(nil) should be nil")
	}
	base := errors.New("bad symbol")
	err := Permanent(base)
	var pe *PermanentError
	if !errors.As(err, &pe) || !errors.Is(err, base) {
		t.Fatalf("unexpected %v", err)
	}
}

func TestMessageID(t *testing.T) {
	ctx := WithMessageID(context.Background(), "abc")
	if MessageID(ctx) != "abc" || MessageID(context.Background()) != "" {
		t.Fatalf("message id not carried")
	}
}

func TestBackoff(t *testing.T) {
	q := NewRedisQueue(nil, &QueueConfig{RetryDelay: time.Second}, nil, ModeProducerConsumer)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range want {
		if got := q.backoff(i + 1); got != w {
			t.Fatalf("attempt %d: %v, want %v", i+1, got, w)
		}
	}
	if got := q.backoff(40); got != maxRetryDelay {
		t.Fatalf("backoff not capped: %v", got)
	}
}

func TestQueueName(t *testing.T) {
	q := NewRedisQueue(nil, nil, nil, ModeProducerOnly, WithQueueName("backtests"))
	if q.key("dlq") != "optsignal:queue:backtests:dlq" {
		t.Fatalf("key %s", q.key("dlq"))
	}
	if err := q.Enqueue(context.Background(), "backtest", nil); err == nil {
		t.Fatalf("enqueue on a stopped queue should fail")
	}
}
