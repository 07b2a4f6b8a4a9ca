package features

import (
	"math"
	"sort"
	"sync"
	"time"

	"OptSignal/internal/domain/models"
	"OptSignal/internal/services/greeks"
)

// DefaultRiskFreeRate is the rate used when no WithRiskFreeRate option is given.
const DefaultRiskFreeRate = 0.01

// cheapPercentile is the single real cut of the IV bucket edges.
const cheapPercentile = 0.25

type config struct {
	rate    float64
	workers int
}

// Option configures a feature build.
type Option func(*config)

// WithRiskFreeRate sets r for every Greeks evaluation.
func WithRiskFreeRate(r float64) Option {
	return func(c *config) { c.rate = r }
}

// WithWorkers computes per-contract Greeks on n goroutines.
func WithWorkers(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.workers = n
		}
	}
}

// Build engineers one feature row per contract of chain against the latest
// close of series, as seen at reference time now. Contracts whose Greeks
// cannot be computed are left out of Rows and listed in Failures.
func Build(series *models.PriceSeries, chain *models.OptionsChain, now time.Time, opts ...Option) (*models.FeatureSet, error) {
	cfg := &config{rate: DefaultRiskFreeRate, workers: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	spot, ok := series.LatestClose()
	if !ok {
		return nil, &models.InsufficientHistoryError{Required: 1, Got: 0}
	}
	contracts := chain.Contracts()
	if len(contracts) == 0 {
		underlying := ""
		if chain != nil {
			underlying = chain.Underlying
		}
		return nil, &models.EmptyChainError{Underlying: underlying}
	}

	ivs := make([]float64, len(contracts))
	for i, c := range contracts {
		ivs[i] = c.IV()
	}
	cut := Percentile(ivs, cheapPercentile)

	type slot struct {
		row models.OptionFeatureRow
		err error
	}
	slots := make([]slot, len(contracts))
	compute := func(i int) {
		row, err := buildRow(contracts[i], spot, now, cfg.rate, cut)
		slots[i] = slot{row: row, err: err}
	}

	if cfg.workers <= 1 || len(contracts) == 1 {
		for i := range contracts {
			compute(i)
		}
	} else {
		idx := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < cfg.workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range idx {
					compute(i)
				}
			}()
		}
		for i := range contracts {
			idx <- i
		}
		close(idx)
		wg.Wait()
	}

	set := &models.FeatureSet{
		Underlying:    chain.Underlying,
		ReferenceTime: now,
		LatestClose:   spot,
		IVCut:         cut,
		Rows:          make([]models.OptionFeatureRow, 0, len(contracts)),
	}
	for i, s := range slots {
		if s.err != nil {
			set.Failures = append(set.Failures, models.ContractFailure{
				Index:    i,
				Contract: contracts[i],
				Code:     models.ErrorCode(s.err),
				Message:  s.err.Error(),
			})
			continue
		}
		set.Rows = append(set.Rows, s.row)
	}
	return set, nil
}

func buildRow(c models.OptionContract, spot float64, now time.Time, rate, cut float64) (models.OptionFeatureRow, error) {
	iv := c.IV()
	dte := DaysToExpiry(c.Expiration, now)
	g, err := greeks.PriceAndGreeks(spot, c.Strike, dte, rate, iv)
	if err != nil {
		return models.OptionFeatureRow{}, err
	}
	return models.OptionFeatureRow{
		Type:              c.Type,
		Expiration:        c.Expiration,
		Strike:            c.Strike,
		Moneyness:         c.Strike / spot,
		DaysToExpiry:      dte,
		ImpliedVolatility: iv,
		IVBucket:          Bucket(iv, cut),
		Delta:             g.Delta,
		Gamma:             g.Gamma,
		Theta:             g.Theta,
		Vega:              g.Vega,
		Rho:               g.Rho,
	}, nil
}

// DaysToExpiry returns whole calendar days from now to expiration, floored,
// expressed in years of 365 days.
func DaysToExpiry(expiration, now time.Time) float64 {
	days := math.Floor(expiration.Sub(now).Hours() / 24)
	return days / 365
}

// Bucket labels iv against the cheap cut. The interval is right-closed:
// an IV equal to the cut is Cheap.
func Bucket(iv, cut float64) models.IVBucket {
	if iv <= cut {
		return models.IVCheap
	}
	return models.IVExpensive
}

// Percentile returns the q-quantile of xs with linear interpolation between
// closest ranks. xs is not modified.
func Percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
