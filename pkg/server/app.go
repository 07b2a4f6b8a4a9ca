package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OptSignal/internal/usecase"
	pkgch "OptSignal/pkg/clickhouse"
	"OptSignal/pkg/config"
	xhttp "OptSignal/pkg/http"
	pkgkafka "OptSignal/pkg/kafka"
	applogger "OptSignal/pkg/logger"
	"OptSignal/pkg/queue"

	"github.com/redis/go-redis/v9"
)

// Components are the optional runtime parts of the service. A nil field is
// a disabled feature.
type Components struct {
	Collector   *usecase.TickCollector
	Consumer    *pkgkafka.Consumer
	BarsHandler pkgkafka.MessageHandler
	Queue       *queue.RedisQueue
	Producer    *pkgkafka.Producer
	ClickHouse  *pkgch.Client
	Redis       *redis.Client
	Cache       io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg  *config.Config
	log  *applogger.Logger
	http *xhttp.Server
	c    Components
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, httpServer *xhttp.Server, c Components) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{cfg: cfg, log: l, http: httpServer, c: c}
}

// Run starts every configured component and blocks until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

// Start brings components up in dependency order: queue workers and the
// Kafka consumer first, then the tick collector, then HTTP.
func (a *App) Start(ctx context.Context) error {
	if a.c.Queue != nil {
		if err := a.c.Queue.Start(); err != nil {
			return err
		}
	}

	if a.c.Consumer != nil && a.c.BarsHandler != nil {
		a.c.Consumer.RegisterHandler(a.c.BarsHandler)
		if err := a.c.Consumer.Start(); err != nil {
			return err
		}
		a.log.Info("kafka consumer started", applogger.String("topic", a.c.BarsHandler.Topic()))
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(ctx); err != nil {
			return err
		}
		a.log.Info("tick collector started",
			applogger.Strings("symbols", a.cfg.Finnhub.Symbols),
			applogger.String("backend", a.cfg.Backend.Type),
		)
	}

	return a.http.Start()
}

// shutdown stops producers of work before the sinks they write to.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	a.log.Info("shutting down")

	if err := a.http.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}

	if a.c.Queue != nil {
		if err := a.c.Queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// The log collector publishes through the producer; flush it first.
	a.log.RemoveCollector()

	if a.c.Producer != nil {
		if err := a.c.Producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.c.Cache != nil {
		_ = a.c.Cache.Close()
	}

	if a.c.Redis != nil {
		if err := a.c.Redis.Close(); err != nil {
			a.log.Warn("redis close error", applogger.Error(err))
		}
	}

	if a.c.ClickHouse != nil {
		if err := a.c.ClickHouse.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}
