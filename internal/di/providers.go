package di

import (
	"context"
	"fmt"
	"time"

	"OptSignal/internal/domain/repository"
	domsvc "OptSignal/internal/domain/service"
	"OptSignal/internal/handler/api"
	mid "OptSignal/internal/middleware"
	internalrepo "OptSignal/internal/repository"
	"OptSignal/internal/service/finnhub"
	servicemetrics "OptSignal/internal/service/metrics"
	"OptSignal/internal/service/ratelimit"
	"OptSignal/internal/services/analytics"
	"OptSignal/internal/usecase"
	"OptSignal/pkg/cache"
	pkgch "OptSignal/pkg/clickhouse"
	"OptSignal/pkg/config"
	xhttp "OptSignal/pkg/http"
	pkgkafka "OptSignal/pkg/kafka"
	applogger "OptSignal/pkg/logger"
	"OptSignal/pkg/metrics"
	"OptSignal/pkg/queue"
	"OptSignal/pkg/server"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// ProvideKafkaProducer creates a Kafka producer, or nil when no component
// publishes to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.KafkaEnabled() {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatch(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithAutoCreateTopics(cfg.Kafka.AutoCreateTopics),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the app logger and attaches the Kafka log collector
// when enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.Log.Collector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Log.Collector.Interval,
			CountThreshold: cfg.Log.Collector.CountThreshold,
			MinLevel:       cfg.Log.Collector.MinLevel,
			Topic:          cfg.Kafka.Topics.Logs,
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient connects and applies the schema.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.Schema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

func ProvideBarStore(ch *pkgch.Client, l *applogger.Logger) repository.BarStore {
	return internalrepo.NewCHBarStore(ch, l)
}

func ProvideBarStorage(ch *pkgch.Client) repository.Storage {
	return internalrepo.NewClickHouseStorage(ch)
}

// ProvideBarPublisher returns nil without a producer.
func ProvideBarPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topics.Bars)
}

func ProvideResultSink(cfg *config.Config, ch *pkgch.Client) repository.ResultSink {
	if !cfg.Strategy.Persist {
		return nil
	}
	return internalrepo.NewCHResultSink(ch)
}

func ProvideEventPublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.EventPublisher {
	if !cfg.Strategy.Publish || producer == nil {
		return nil
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topics.Signals, cfg.Kafka.Topics.Features)
}

func ProvideFinnhubREST(cfg *config.Config) *finnhub.REST {
	var opts []finnhub.RESTOption
	if cfg.Finnhub.IVFraction {
		opts = append(opts, finnhub.WithIVFraction())
	}
	return finnhub.NewREST(cfg.Finnhub.RESTURL, cfg.Finnhub.APIKey, cfg.Finnhub.Timeout, opts...)
}

// ProvideFinnhubStream creates the Finnhub WebSocket stream.
func ProvideFinnhubStream(cfg *config.Config, l *applogger.Logger) repository.MarketStream {
	return finnhub.NewStream(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, cfg.Finnhub.Symbols,
		finnhub.WithReconnectDelay(cfg.Finnhub.ReconnectDelay),
		finnhub.WithPingInterval(cfg.Finnhub.PingInterval),
		finnhub.WithStreamLogger(l),
	)
}

func ProvidePredictor(cfg *config.Config) domsvc.PricePredictor {
	if !cfg.Predictor.Enabled {
		return nil
	}
	var opts []xhttp.ClientOption
	if cfg.Predictor.APIKey != "" {
		opts = append(opts, xhttp.WithHeader("Authorization", "Bearer "+cfg.Predictor.APIKey))
	}
	return analytics.NewHTTPPricePredictor(cfg.Predictor.URL, cfg.Predictor.Model, cfg.Predictor.Timeout, cfg.Predictor.MaxRetries, opts...)
}

// ProvideRedisClient returns nil when Redis is disabled.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// ProvideCache layers memory over Redis, or uses memory alone.
func ProvideCache(cfg *config.Config, rc *redis.Client) cache.Service {
	if rc == nil {
		return cache.NewMemoryCache(cache.WithMaxEntries(cfg.Redis.L1Size), cache.WithJanitor(time.Minute))
	}
	return cache.NewLayeredCache(
		cache.NewRedisCacheFromClient(rc, "optsignal:cache"),
		cache.WithL1Size(cfg.Redis.L1Size),
		cache.WithL1TTL(cfg.Strategy.CacheTTL),
	)
}

func ProvideStrategyUseCase(
	cfg *config.Config,
	bars repository.BarStore,
	rest *finnhub.REST,
	predictor domsvc.PricePredictor,
	sink repository.ResultSink,
	events repository.EventPublisher,
	c cache.Service,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.StrategyUseCase {
	opts := []usecase.StrategyOption{
		usecase.WithCache(c, cfg.Strategy.CacheTTL),
		usecase.WithStrategyLogger(l),
		usecase.WithStrategyMetrics(m),
		usecase.WithStrategyParams(cfg.Strategy.InitialCapital, cfg.Strategy.RiskFreeRate, cfg.Strategy.FeatureWorkers),
	}
	if predictor != nil {
		opts = append(opts, usecase.WithPredictor(predictor))
	}
	if sink != nil {
		opts = append(opts, usecase.WithResultSink(sink))
	}
	if events != nil {
		opts = append(opts, usecase.WithEventPublisher(events))
	}
	return usecase.NewStrategyUseCase(bars, rest, opts...)
}

func ProvideReportUseCase(cfg *config.Config, strategy *usecase.StrategyUseCase) *usecase.ReportUseCase {
	return usecase.NewReportUseCase(strategy, cfg.Strategy.ReportTimeout)
}

func ProvideBarsUseCase(
	bars repository.BarStore,
	rest *finnhub.REST,
	storage repository.Storage,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.BarsUseCase {
	return usecase.NewBarsUseCase(bars, rest, storage, m, l)
}

// ProvideJobQueue returns nil without Redis.
func ProvideJobQueue(cfg *config.Config, rc *redis.Client, l *applogger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	mode := queue.ModeProducerConsumer
	if !cfg.Queue.Consume {
		mode = queue.ModeProducerOnly
	}
	return queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:      cfg.Queue.Workers,
		RetryLimit:   cfg.Queue.MaxRetries,
		RetryDelay:   cfg.Queue.RetryDelay,
		PollInterval: cfg.Queue.PollInterval,
	}, rc, mode, queue.WithQueueName(cfg.Queue.Name))
}

// ProvideBacktestJobs registers the backtest runner on the queue. Job
// records skip the in-process layer so every replica reads the same status.
func ProvideBacktestJobs(
	cfg *config.Config,
	strategy *usecase.StrategyUseCase,
	q *queue.RedisQueue,
	rc *redis.Client,
	l *applogger.Logger,
) *usecase.BacktestJobs {
	if q == nil || rc == nil {
		return nil
	}
	records := cache.NewRedisCacheFromClient(rc, "optsignal:jobs")
	jobs := usecase.NewBacktestJobs(strategy, q, records, cfg.Queue.JobTTL, l)
	q.RegisterJob(jobs)
	return jobs
}

func ProvideStrategyHandler(
	l *applogger.Logger,
	strategy *usecase.StrategyUseCase,
	report *usecase.ReportUseCase,
	bars *usecase.BarsUseCase,
	jobs *usecase.BacktestJobs,
	ch *pkgch.Client,
	rc *redis.Client,
) *api.StrategyEchoHandler {
	servicemetrics.Register()
	opts := []api.HandlerOption{
		api.WithReport(report),
		api.WithBars(bars),
		api.WithHealthCheck("clickhouse", ch.Health),
	}
	if jobs != nil {
		opts = append(opts, api.WithJobs(jobs))
	}
	if rc != nil {
		opts = append(opts, api.WithHealthCheck("redis", func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}))
	}
	return api.NewStrategyEchoHandler(l, strategy, opts...)
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.StrategyEchoHandler) *xhttp.Server {
	var mws []echo.MiddlewareFunc
	if cfg.Server.RateLimit.RPS > 0 {
		lim := ratelimit.New(cfg.Server.RateLimit.RPS, float64(cfg.Server.RateLimit.Burst))
		mws = append(mws, ratelimit.Middleware(lim, "/healthz", cfg.Metrics.Path))
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true, cfg.Server.AllowOrigins...),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
		xhttp.WithLogger(l),
		xhttp.WithMiddleware(mws...),
	)
}

// ProvideBarProcessor creates the tick-to-bar aggregator.
func ProvideBarProcessor(
	cfg *config.Config,
	pub repository.Publisher,
	store repository.Storage,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.BarProcessor {
	return usecase.NewBarProcessor(pub, store, m, l, cfg.Backend.Type, cfg.Backend.BatchSize, cfg.Backend.BatchTimeout)
}

// ProvideTickCollector returns nil unless streaming is enabled.
func ProvideTickCollector(
	cfg *config.Config,
	stream repository.MarketStream,
	proc *usecase.BarProcessor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TickCollector {
	if !cfg.Finnhub.Stream {
		return nil
	}
	pipe := mid.NewRealtimePipeline(proc, m,
		mid.WithBufferSize(2000),
		mid.WithMaxRPS(cfg.Finnhub.MaxTickRate),
		mid.WithTransform(mid.CanonicalSymbol),
	)
	return usecase.NewTickCollector(stream, proc, m, pipe, l)
}

// ProvideKafkaConsumer returns nil unless the bars consumer is enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.StartFrom),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.LoggingHook(l, time.Second))
	return consumer, nil
}

func ProvideKafkaBarsHandler(cfg *config.Config, storage repository.Storage, m repository.Metrics) *usecase.KafkaBarsHandler {
	return usecase.NewKafkaBarsHandler(cfg.Kafka.Topics.Bars, storage, m)
}

// ProvideApp assembles the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaBarsHandler,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rc *redis.Client,
	c cache.Service,
) *server.App {
	comps := server.Components{
		Collector:  collector,
		Consumer:   consumer,
		Queue:      q,
		Producer:   producer,
		ClickHouse: ch,
		Redis:      rc,
	}
	if consumer != nil {
		comps.BarsHandler = kh
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		comps.Cache = closer
	}
	return server.New(cfg, l, srv, comps)
}
