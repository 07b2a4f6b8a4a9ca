package usecase

import (
	"context"
	"errors"

	"OptSignal/internal/domain/models"
	drepo "OptSignal/internal/domain/repository"
	mid "OptSignal/internal/middleware"
	applogger "OptSignal/pkg/logger"
)

var errStreamClosed = errors.New("market stream closed")

// TickCollector reads ticks from the market stream and hands them to the
// bar processor, reconnecting on stream errors.
type TickCollector struct {
	stream  drepo.MarketStream
	proc    *BarProcessor
	metrics drepo.Metrics
	pipe    *mid.RealtimePipeline
	log     *applogger.Logger
}

// NewTickCollector creates a new TickCollector instance.
func NewTickCollector(stream drepo.MarketStream, proc *BarProcessor, metrics drepo.Metrics, pipe *mid.RealtimePipeline, l *applogger.Logger) *TickCollector {
	if l == nil {
		l = applogger.Nop()
	}
	return &TickCollector{stream: stream, proc: proc, metrics: metrics, pipe: pipe, log: l}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	c.proc.Start(ctx)
	go c.run(ctx)
	return nil
}

func (c *TickCollector) run(ctx context.Context) {
	for {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if ctx.Err() != nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Warn("market stream interrupted", applogger.Error(err))
		for {
			rerr := c.stream.Reconnect(ctx)
			if rerr == nil {
				c.log.Info("market stream reconnected")
				break
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("market stream reconnect failed", applogger.Error(rerr))
		}
	}
}

func (c *TickCollector) consume(ctx context.Context, trCh <-chan *models.Tick, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case t, ok := <-trCh:
			if !ok {
				return errStreamClosed
			}
			if t == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, t)
			} else {
				_ = c.proc.Process(ctx, t)
			}
			c.metrics.RecordLastPrice(t.Symbol, t.Price)
		}
	}
}

// Processor returns the underlying BarProcessor for lifecycle management.
func (c *TickCollector) Processor() *BarProcessor { return c.proc }

// Shutdown stops the pipeline, flushes open bars and closes the stream.
// ctx must outlive the collector's run context for the final flush.
func (c *TickCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	if err := c.proc.Close(ctx); err != nil {
		c.log.Warn("final bar flush failed", applogger.Error(err))
	}
	return c.stream.Close()
}
