package models

import (
	"math"
	"time"
)

// OptionType is the contract right.
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// OptionContract is one listed contract of an options chain.
type OptionContract struct {
	Type              OptionType `json:"type"`
	Strike            float64    `json:"strike"`
	Expiration        time.Time  `json:"expiration"`
	ImpliedVolatility *float64   `json:"implied_volatility,omitempty"`
}

// IV returns the implied volatility. Missing, NaN and infinite values
// count as zero.
func (c OptionContract) IV() float64 {
	if c.ImpliedVolatility == nil {
		return 0
	}
	v := *c.ImpliedVolatility
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ExpirationGroup holds the contracts listed for one expiration date.
type ExpirationGroup struct {
	Expiration time.Time        `json:"expiration"`
	Contracts  []OptionContract `json:"contracts"`
}

// OptionsChain is a snapshot of all listed contracts for one underlying.
// Iteration order is the order of Expirations and of their contracts.
type OptionsChain struct {
	Underlying  string            `json:"underlying"`
	Expirations []ExpirationGroup `json:"expirations"`
}

// Contracts flattens the chain in iteration order.
func (c *OptionsChain) Contracts() []OptionContract {
	if c == nil {
		return nil
	}
	var out []OptionContract
	for _, g := range c.Expirations {
		for _, oc := range g.Contracts {
			if oc.Expiration.IsZero() {
				oc.Expiration = g.Expiration
			}
			out = append(out, oc)
		}
	}
	return out
}

// Greeks is the Black-Scholes price and sensitivity set. Delta, Theta and
// Rho are the call-side values; the Put* fields carry the put-side ones.
type Greeks struct {
	CallPrice float64 `json:"call_price"`
	PutPrice  float64 `json:"put_price"`
	Delta     float64 `json:"delta"`
	Gamma     float64 `json:"gamma"`
	Theta     float64 `json:"theta"`
	Vega      float64 `json:"vega"`
	Rho       float64 `json:"rho"`
	PutDelta  float64 `json:"put_delta"`
	PutTheta  float64 `json:"put_theta"`
	PutRho    float64 `json:"put_rho"`
}

// IVBucket labels a contract's implied volatility against the chain.
type IVBucket string

const (
	IVCheap     IVBucket = "Cheap"
	IVExpensive IVBucket = "Expensive"
)

// OptionFeatureRow is the engineered feature vector of one contract.
type OptionFeatureRow struct {
	Type              OptionType `json:"type"`
	Expiration        time.Time  `json:"expiration"`
	Strike            float64    `json:"strike"`
	Moneyness         float64    `json:"moneyness"`
	DaysToExpiry      float64    `json:"days_to_expiry"`
	ImpliedVolatility float64    `json:"implied_volatility"`
	IVBucket          IVBucket   `json:"iv_bucket"`
	Delta             float64    `json:"delta"`
	Gamma             float64    `json:"gamma"`
	Theta             float64    `json:"theta"`
	Vega              float64    `json:"vega"`
	Rho               float64    `json:"rho"`
}

// ContractFailure records a contract excluded from a feature build.
type ContractFailure struct {
	Index    int            `json:"index"`
	Contract OptionContract `json:"contract"`
	Code     string         `json:"code"`
	Message  string         `json:"message"`
}

// FeatureSet is the output of one feature build.
type FeatureSet struct {
	Underlying    string             `json:"underlying"`
	ReferenceTime time.Time          `json:"reference_time"`
	LatestClose   float64            `json:"latest_close"`
	IVCut         float64            `json:"iv_cut"`
	Rows          []OptionFeatureRow `json:"rows"`
	Failures      []ContractFailure  `json:"failures,omitempty"`
}

// Prediction is the external model's answer for a feature set.
type Prediction struct {
	Symbol         string    `json:"symbol"`
	Timestamp      time.Time `json:"timestamp"`
	PredictedPrice float64   `json:"predicted_price"`
	Model          string    `json:"model"`
}
