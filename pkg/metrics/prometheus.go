// Package metrics is the Prometheus implementation of the domain Metrics
// port.
package metrics

import (
	"OptSignal/internal/domain/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "optsignal"

// Recorder records ingestion and strategy observations.
type Recorder struct {
	barsSent         *prometheus.CounterVec
	errors           *prometheus.CounterVec
	lastPrice        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
	portfolioValue   *prometheus.GaugeVec
	signalsTotal     *prometheus.CounterVec
	contractFailures *prometheus.CounterVec
}

// New registers on the default registry. Call it once per process.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	counter := func(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
	}
	gauge := func(subsystem, name, help string, labels ...string) *prometheus.GaugeVec {
		return f.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}, labels)
	}

	return &Recorder{
		barsSent:  counter("ingest", "bars_sent_total", "Bars handed to the storage backend", "backend", "symbol"),
		errors:    counter("", "errors_total", "Errors by kind", "kind"),
		lastPrice: gauge("ingest", "last_price", "Last traded price of the underlying", "symbol"),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline and strategy operations",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 15},
		}, []string{"operation"}),
		portfolioValue:   gauge("backtest", "portfolio_value", "Final portfolio value of the latest backtest", "symbol"),
		signalsTotal:     counter("strategy", "signals_total", "Latest-bar decisions by direction", "symbol", "signal"),
		contractFailures: counter("strategy", "contract_failures_total", "Contracts whose Greeks could not be computed", "code"),
	}
}

func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.barsSent.WithLabelValues(backend, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) { r.errors.WithLabelValues(kind).Inc() }

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordPortfolioValue(symbol string, value float64) {
	r.portfolioValue.WithLabelValues(symbol).Set(value)
}

func (r *Recorder) RecordSignal(symbol string, signal models.Signal) {
	r.signalsTotal.WithLabelValues(symbol, signal.String()).Inc()
}

func (r *Recorder) RecordContractFailure(code string) {
	r.contractFailures.WithLabelValues(code).Inc()
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordMessageSent(string, string)     {}
func (Nop) RecordError(string)                   {}
func (Nop) RecordLastPrice(string, float64)      {}
func (Nop) RecordLatency(string, float64)        {}
func (Nop) RecordPortfolioValue(string, float64) {}
func (Nop) RecordSignal(string, models.Signal)   {}
func (Nop) RecordContractFailure(string)         {}
