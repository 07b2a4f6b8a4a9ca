package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"OptSignal/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		Collector  struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
			MinLevel       string        `yaml:"min_level" default:"error" validate:"oneof=warn error"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Server struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
		RateLimit       struct {
			RPS   float64 `yaml:"rps" default:"20" validate:"gte=0"`
			Burst int     `yaml:"burst" default:"40" validate:"gte=0"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type" default:"clickhouse" validate:"oneof=kafka clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"100" validate:"gt=0"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
	} `yaml:"backend"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topics  struct {
			Bars     string `yaml:"bars" default:"optsignal.bars"`
			Signals  string `yaml:"signals" default:"optsignal.signals"`
			Features string `yaml:"features" default:"optsignal.features"`
			Logs     string `yaml:"logs" default:"optsignal.logs"`
		} `yaml:"topics"`
		RequiredAcks     int    `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
		Compression      string `yaml:"compression" default:"snappy" validate:"oneof=gzip snappy lz4 zstd"`
		AutoCreateTopics bool   `yaml:"auto_create_topics"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"optsignal-bars"`
			StartFrom  string        `yaml:"start_from" default:"earliest" validate:"oneof=earliest latest"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"optsignal.bars.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"10000"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"optsignal"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Finnhub struct {
		APIKey         string        `yaml:"api_key" validate:"required"`
		RESTURL        string        `yaml:"rest_url" default:"https://finnhub.io/api/v1" validate:"url"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		Symbols        []string      `yaml:"symbols" validate:"min=1,dive,required"`
		Stream         bool          `yaml:"stream"`
		Timeout        time.Duration `yaml:"timeout" default:"15s"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxTickRate    int           `yaml:"max_tick_rate" validate:"gte=0"`
		IVFraction     bool          `yaml:"iv_fraction"`
	} `yaml:"finnhub"`
	Strategy struct {
		InitialCapital float64       `yaml:"initial_capital" default:"10000" validate:"gt=0"`
		RiskFreeRate   float64       `yaml:"risk_free_rate" default:"0.01"`
		HistoryBars    int           `yaml:"history_bars" default:"250" validate:"gte=28"`
		FeatureWorkers int           `yaml:"feature_workers" default:"4" validate:"gte=0"`
		CacheTTL       time.Duration `yaml:"cache_ttl" default:"5m"`
		ReportTimeout  time.Duration `yaml:"report_timeout" default:"15s"`
		Persist        bool          `yaml:"persist"`
		Publish        bool          `yaml:"publish"`
	} `yaml:"strategy"`
	Predictor struct {
		Enabled    bool          `yaml:"enabled"`
		URL        string        `yaml:"url" default:"http://localhost:8000"`
		Model      string        `yaml:"model" default:"linear"`
		Timeout    time.Duration `yaml:"timeout" default:"10s"`
		MaxRetries int           `yaml:"max_retries" default:"2"`
		APIKey     string        `yaml:"api_key"`
	} `yaml:"predictor"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		L1Size   int    `yaml:"l1_size" default:"1024" validate:"gt=0"`
	} `yaml:"redis"`
	Queue struct {
		Name         string        `yaml:"name" default:"backtests"`
		Workers      int           `yaml:"workers" default:"2" validate:"gte=1"`
		Consume      bool          `yaml:"consume" default:"true"`
		MaxRetries   int           `yaml:"max_retries" default:"3"`
		RetryDelay   time.Duration `yaml:"retry_delay" default:"10s"`
		PollInterval time.Duration `yaml:"poll_interval" default:"1s"`
		JobTTL       time.Duration `yaml:"job_ttl" default:"24h"`
	} `yaml:"queue"`
}

var validate = validator.New()

// Load reads a YAML configuration file on top of the struct defaults and
// validates the result.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present), then the YAML file, then applies
// environment overrides before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Finnhub.Symbols = util.SplitCSV(v)
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("PREDICTOR_URL"); v != "" {
		c.Predictor.URL = v
		c.Predictor.Enabled = true
	}
	if v := os.Getenv("PREDICTOR_API_KEY"); v != "" {
		c.Predictor.APIKey = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("HTTP_PORT: %w", err)
		}
		c.Server.Port = p
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when backend.type is kafka")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka.consumer.enabled")
	}
	if c.Strategy.Publish && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when strategy.publish")
	}
	if c.Log.Collector.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when log.collector.enabled")
	}
	return nil
}

// KafkaEnabled reports whether any component needs a Kafka producer.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0 &&
		(c.Backend.Type == "kafka" || c.Strategy.Publish || c.Log.Collector.Enabled)
}
