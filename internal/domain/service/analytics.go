// Package service declares the outbound services the strategy core
// depends on: market data, option chains and the price model.
package service

import (
	"context"
	"time"

	"OptSignal/internal/domain/models"
)

// ChainProvider returns an options chain snapshot for an underlying. The
// snapshot carries its own spot price and retrieval time.
type ChainProvider interface {
	GetChain(ctx context.Context, symbol string) (*models.OptionsChain, error)
}

// CandleSource returns historical bars in ascending order. resolution uses
// the vendor's codes, e.g. "60" or "D".
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, resolution string, from, to time.Time) ([]models.PriceBar, error)
}

// PricePredictor scores an engineered feature set with an external model.
type PricePredictor interface {
	Predict(ctx context.Context, symbol string, set *models.FeatureSet) (models.Prediction, error)
}
