// Package greeks prices European options with the Black-Scholes closed form.
package greeks

import (
	"math"

	"OptSignal/internal/domain/models"

	"gonum.org/v1/gonum/stat/distuv"
)

// PriceAndGreeks returns call and put prices and sensitivities for spot s,
// strike k, time to expiry t (years), risk-free rate r and volatility sigma.
func PriceAndGreeks(s, k, t, r, sigma float64) (models.Greeks, error) {
	if err := validate(s, k, t, r, sigma); err != nil {
		return models.Greeks{}, err
	}

	sqrtT := math.Sqrt(t)
	volT := sigma * sqrtT
	if volT == 0 {
		// sigma*sqrt(T) underflowed; d1 would be infinite.
		return models.Greeks{}, &models.DegenerateInputError{Field: "sigma"}
	}
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / volT
	d2 := d1 - volT
	disc := k * math.Exp(-r*t)
	pdf := normPDF(d1)
	nd1, nd2 := normCDF(d1), normCDF(d2)
	nmd1, nmd2 := normCDF(-d1), normCDF(-d2)
	decay := -(s * pdf * sigma) / (2 * sqrtT)

	g := models.Greeks{
		CallPrice: s*nd1 - disc*nd2,
		PutPrice:  disc*nmd2 - s*nmd1,
		Delta:     nd1,
		Gamma:     pdf / (s * volT),
		Theta:     decay - r*disc*nd2,
		Vega:      s * pdf * sqrtT,
		Rho:       t * disc * nd2,
		PutDelta:  nd1 - 1,
		PutTheta:  decay + r*disc*nmd2,
		PutRho:    -t * disc * nmd2,
	}
	for _, v := range []float64{g.CallPrice, g.PutPrice, g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho, g.PutTheta, g.PutRho} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Greeks{}, &models.DegenerateInputError{Field: "sigma"}
		}
	}
	return g, nil
}

func validate(s, k, t, r, sigma float64) error {
	for _, in := range []struct {
		name string
		v    float64
	}{{"S", s}, {"K", k}, {"T", t}, {"r", r}, {"sigma", sigma}} {
		if math.IsNaN(in.v) || math.IsInf(in.v, 0) {
			return &models.InvalidInputError{Field: in.name, Value: in.v, Reason: "must be finite"}
		}
	}
	switch {
	case s <= 0:
		return &models.InvalidInputError{Field: "S", Value: s, Reason: "spot must be positive"}
	case k <= 0:
		return &models.InvalidInputError{Field: "K", Value: k, Reason: "strike must be positive"}
	case sigma < 0:
		return &models.InvalidInputError{Field: "sigma", Value: sigma, Reason: "volatility must not be negative"}
	case t < 0:
		return &models.InvalidInputError{Field: "T", Value: t, Reason: "time to expiry must not be negative"}
	case t == 0:
		return &models.DegenerateInputError{Field: "T"}
	case sigma == 0:
		return &models.DegenerateInputError{Field: "sigma"}
	}
	return nil
}

func normPDF(x float64) float64 { return distuv.UnitNormal.Prob(x) }

func normCDF(x float64) float64 { return distuv.UnitNormal.CDF(x) }
