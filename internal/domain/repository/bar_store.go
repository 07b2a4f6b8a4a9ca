package repository

import (
	"context"
	"time"

	"OptSignal/internal/domain/models"
)

// Timeframe is a bar resolution.
type Timeframe string

const (
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// IsValidTimeframe reports whether tf has a bar table.
func IsValidTimeframe(tf Timeframe) bool {
	return tf == TF1h || tf == TF1d
}

// NormalizeTimeframe maps an empty or unknown value to daily bars.
func NormalizeTimeframe(s string) Timeframe {
	if tf := Timeframe(s); IsValidTimeframe(tf) {
		return tf
	}
	return TF1d
}

// Bucket returns the UTC open time of the bar containing t.
func (tf Timeframe) Bucket(t time.Time) time.Time {
	t = t.UTC()
	if tf == TF1h {
		return t.Truncate(time.Hour)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Duration is the nominal bar length.
func (tf Timeframe) Duration() time.Duration {
	if tf == TF1h {
		return time.Hour
	}
	return 24 * time.Hour
}

// BarMessage is one bar on its way to a backend.
type BarMessage struct {
	Symbol    string          `json:"symbol"`
	Timeframe Timeframe       `json:"tf"`
	Bar       models.PriceBar `json:"bar"`
}

// BarStore is the read side the strategy core pulls price history from.
// Bars come back in ascending time order.
type BarStore interface {
	GetBars(ctx context.Context, symbol string, from, to time.Time, tf Timeframe) ([]models.PriceBar, error)
	GetLatestNBars(ctx context.Context, symbol string, n int, tf Timeframe) ([]models.PriceBar, error)
}

// Storage is the write side for aggregated bars. Storing a bar twice for
// the same symbol, timeframe and open time keeps the later one.
type Storage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, b *BarMessage) error
	StoreBatch(ctx context.Context, bars []*BarMessage) error
	Health(ctx context.Context) error
	Close() error
}

// Publisher ships bars to the broker for a downstream Storage consumer.
type Publisher interface {
	Publish(ctx context.Context, b *BarMessage) error
	PublishBatch(ctx context.Context, bars []*BarMessage) error
	Close() error
}
