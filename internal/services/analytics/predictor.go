package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"OptSignal/internal/domain/models"
	domsvc "OptSignal/internal/domain/service"
	xhttp "OptSignal/pkg/http"
)

// HTTPPricePredictor forwards feature rows to an external model service.
type HTTPPricePredictor struct {
	base     *HTTPServiceBase
	model    string
	attempts int
}

// NewHTTPPricePredictor creates a predictor posting to {url}/predict.
func NewHTTPPricePredictor(url, model string, timeout time.Duration, maxRetries int, opts ...xhttp.ClientOption) *HTTPPricePredictor {
	return &HTTPPricePredictor{
		base:     NewHTTPServiceBase(url, timeout, opts...),
		model:    model,
		attempts: maxRetries + 1,
	}
}

type predictRequest struct {
	Symbol        string                    `json:"symbol"`
	Model         string                    `json:"model"`
	ReferenceTime time.Time                 `json:"reference_time"`
	LatestClose   float64                   `json:"latest_close"`
	Features      []models.OptionFeatureRow `json:"features"`
}

type predictResponse struct {
	PredictedPrice *float64 `json:"predicted_price"`
	Model          string   `json:"model"`
}

func (p *HTTPPricePredictor) Predict(ctx context.Context, symbol string, set *models.FeatureSet) (models.Prediction, error) {
	var out models.Prediction
	if set == nil || len(set.Rows) == 0 {
		return out, &models.EmptyChainError{Underlying: symbol}
	}
	var pr predictResponse
	err := p.base.PostJSONWithRetry(ctx, "/predict", predictRequest{
		Symbol:        symbol,
		Model:         p.model,
		ReferenceTime: set.ReferenceTime,
		LatestClose:   set.LatestClose,
		Features:      set.Rows,
	}, &pr, p.attempts)
	if err != nil {
		return out, fmt.Errorf("predict %s: %w", symbol, err)
	}
	if pr.PredictedPrice == nil || math.IsNaN(*pr.PredictedPrice) || math.IsInf(*pr.PredictedPrice, 0) {
		return out, fmt.Errorf("predict %s: response has no usable predicted_price", symbol)
	}
	out.Symbol = symbol
	out.Timestamp = set.ReferenceTime
	out.PredictedPrice = *pr.PredictedPrice
	out.Model = pr.Model
	if out.Model == "" {
		out.Model = p.model
	}
	return out, nil
}

var _ domsvc.PricePredictor = (*HTTPPricePredictor)(nil)
