package repository

import (
	"context"

	"OptSignal/internal/domain/models"
)

// MarketStream delivers live ticks for the configured symbols. Read's
// channels close when the connection drops; call Reconnect then.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	IsConnected() bool
	Close() error
}

// ResultSink persists strategy outputs under a run id.
type ResultSink interface {
	SaveFeatures(ctx context.Context, runID string, set *models.FeatureSet) error
	SaveBacktest(ctx context.Context, runID string, res *models.BacktestResult) error
}

// EventPublisher fans strategy outputs out to downstream consumers.
type EventPublisher interface {
	PublishSignals(ctx context.Context, series *models.PriceSeries) error
	PublishFeatures(ctx context.Context, runID string, set *models.FeatureSet) error
}

// Metrics receives pipeline and strategy observations.
type Metrics interface {
	// ingestion
	RecordMessageSent(backend, symbol string)
	RecordLastPrice(symbol string, price float64)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)

	// strategy
	RecordSignal(symbol string, signal models.Signal)
	RecordPortfolioValue(symbol string, value float64)
	RecordContractFailure(code string)
}
