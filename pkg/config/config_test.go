package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimal = `
environment: test
finnhub:
  api_key: key
  symbols: [AAPL]
`

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Strategy.InitialCapital != 10000 || c.Strategy.RiskFreeRate != 0.01 {
		t.Fatalf("strategy defaults not applied: %+v", c.Strategy)
	}
	if c.Strategy.CacheTTL != 5*time.Minute {
		t.Fatalf("cache ttl = %v", c.Strategy.CacheTTL)
	}
	if c.Kafka.Topics.Bars != "optsignal.bars" || c.Kafka.RequiredAcks != -1 {
		t.Fatalf("kafka defaults not applied: %+v", c.Kafka.Topics)
	}
	if c.Server.Port != 8080 || c.Backend.Type != "clickhouse" {
		t.Fatalf("unexpected server/backend: %d %s", c.Server.Port, c.Backend.Type)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimal+`
strategy:
  initial_capital: 5000
  cache_ttl: 30s
server:
  port: 9090
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Strategy.InitialCapital != 5000 || c.Strategy.CacheTTL != 30*time.Second {
		t.Fatalf("yaml values lost: %+v", c.Strategy)
	}
	if c.Strategy.HistoryBars != 250 {
		t.Fatalf("sibling default lost: %d", c.Strategy.HistoryBars)
	}
	if c.Server.Port != 9090 {
		t.Fatalf("port = %d", c.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing api key", "finnhub:\n  symbols: [AAPL]\n"},
		{"no symbols", "finnhub:\n  api_key: k\n"},
		{"bad backend", minimal + "backend:\n  type: s3\n"},
		{"kafka without brokers", minimal + "backend:\n  type: kafka\n"},
		{"short history", minimal + "strategy:\n  history_bars: 10\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "from-env")
	t.Setenv("SYMBOLS", "MSFT, NVDA")
	t.Setenv("BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")

	c, err := LoadWithEnv(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if c.Finnhub.APIKey != "from-env" {
		t.Fatalf("api key = %q", c.Finnhub.APIKey)
	}
	if len(c.Finnhub.Symbols) != 2 || c.Finnhub.Symbols[1] != "NVDA" {
		t.Fatalf("symbols = %v", c.Finnhub.Symbols)
	}
	if c.Backend.Type != "kafka" || len(c.Kafka.Brokers) != 2 {
		t.Fatalf("backend = %s brokers = %v", c.Backend.Type, c.Kafka.Brokers)
	}
	if !c.Redis.Enabled || c.Redis.Addr != "redis:6379" {
		t.Fatalf("redis = %+v", c.Redis)
	}
	if !c.KafkaEnabled() {
		t.Fatalf("expected kafka enabled")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}
