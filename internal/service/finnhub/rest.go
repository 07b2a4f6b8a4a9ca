package finnhub

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"OptSignal/internal/domain/models"
	domsvc "OptSignal/internal/domain/service"
	xhttp "OptSignal/pkg/http"
)

var (
	_ domsvc.CandleSource  = (*REST)(nil)
	_ domsvc.ChainProvider = (*REST)(nil)
)

// REST fetches candles and option chains from the Finnhub REST API.
type REST struct {
	baseURL   string
	apiKey    string
	client    *xhttp.Client
	ivPercent bool
}

// RESTOption configures REST.
type RESTOption func(*REST)

// WithRESTClient replaces the HTTP client.
func WithRESTClient(c *xhttp.Client) RESTOption {
	return func(r *REST) { r.client = c }
}

// WithIVFraction marks chain IVs as already fractional (0.25 rather than 25).
func WithIVFraction() RESTOption {
	return func(r *REST) { r.ivPercent = false }
}

// NewREST creates a Finnhub REST adapter.
func NewREST(baseURL, apiKey string, timeout time.Duration, opts ...RESTOption) *REST {
	r := &REST{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		client:    xhttp.NewClient(xhttp.WithTimeout(timeout)),
		ivPercent: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type candleResponse struct {
	Close  []float64 `json:"c"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Open   []float64 `json:"o"`
	Time   []int64   `json:"t"`
	Volume []float64 `json:"v"`
	Status string    `json:"s"`
}

// GetCandles returns time-ascending bars. Resolution is Finnhub's ("60", "D").
func (r *REST) GetCandles(ctx context.Context, symbol, resolution string, from, to time.Time) ([]models.PriceBar, error) {
	var resp candleResponse
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     r.baseURL + "/stock/candle",
		Headers: map[string]string{"X-Finnhub-Token": r.apiKey},
		QueryParams: map[string][]string{
			"symbol":     {symbol},
			"resolution": {resolution},
			"from":       {strconv.FormatInt(from.Unix(), 10)},
			"to":         {strconv.FormatInt(to.Unix(), 10)},
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("finnhub candles %s: %w", symbol, err)
	}
	if resp.Status == "no_data" {
		return nil, nil
	}
	if resp.Status != "ok" {
		return nil, fmt.Errorf("finnhub candles %s: status %q", symbol, resp.Status)
	}

	n := len(resp.Time)
	if len(resp.Close) != n || len(resp.Open) != n || len(resp.High) != n || len(resp.Low) != n || len(resp.Volume) != n {
		return nil, fmt.Errorf("finnhub candles %s: ragged columns", symbol)
	}
	bars := make([]models.PriceBar, n)
	for i := 0; i < n; i++ {
		bars[i] = models.PriceBar{
			Timestamp: time.Unix(resp.Time[i], 0).UTC(),
			Open:      resp.Open[i],
			High:      resp.High[i],
			Low:       resp.Low[i],
			Close:     resp.Close[i],
			Volume:    resp.Volume[i],
		}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	return bars, nil
}

type chainContract struct {
	Strike            float64  `json:"strike"`
	ImpliedVolatility *float64 `json:"impliedVolatility"`
}

type chainExpiration struct {
	ExpirationDate string `json:"expirationDate"`
	Options        struct {
		Call []chainContract `json:"CALL"`
		Put  []chainContract `json:"PUT"`
	} `json:"options"`
}

type chainResponse struct {
	Code string            `json:"code"`
	Data []chainExpiration `json:"data"`
}

// GetChain returns the chain with expirations in the order Finnhub lists
// them and calls before puts within an expiration.
func (r *REST) GetChain(ctx context.Context, symbol string) (*models.OptionsChain, error) {
	var resp chainResponse
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         r.baseURL + "/stock/option-chain",
		Headers:     map[string]string{"X-Finnhub-Token": r.apiKey},
		QueryParams: map[string][]string{"symbol": {symbol}},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("finnhub option chain %s: %w", symbol, err)
	}
	return r.toChain(symbol, resp)
}

func (r *REST) toChain(symbol string, resp chainResponse) (*models.OptionsChain, error) {
	chain := &models.OptionsChain{Underlying: symbol}
	for _, e := range resp.Data {
		exp, err := time.Parse(time.DateOnly, e.ExpirationDate)
		if err != nil {
			return nil, fmt.Errorf("finnhub option chain %s: expiration %q: %w", symbol, e.ExpirationDate, err)
		}
		g := models.ExpirationGroup{Expiration: exp}
		for _, c := range e.Options.Call {
			g.Contracts = append(g.Contracts, r.contract(models.OptionCall, exp, c))
		}
		for _, c := range e.Options.Put {
			g.Contracts = append(g.Contracts, r.contract(models.OptionPut, exp, c))
		}
		chain.Expirations = append(chain.Expirations, g)
	}
	return chain, nil
}

func (r *REST) contract(t models.OptionType, exp time.Time, c chainContract) models.OptionContract {
	oc := models.OptionContract{Type: t, Strike: c.Strike, Expiration: exp}
	if c.ImpliedVolatility != nil {
		iv := *c.ImpliedVolatility
		if r.ivPercent {
			iv /= 100
		}
		oc.ImpliedVolatility = &iv
	}
	return oc
}

// Resolution maps a stored timeframe to Finnhub's resolution code.
func Resolution(tf string) string {
	if tf == "1h" {
		return "60"
	}
	return "D"
}
