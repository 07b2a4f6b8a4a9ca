package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	StrategyLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "optsignal",
			Subsystem: "strategy",
			Name:      "latency_seconds",
			Help:      "Latency of strategy endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	StrategyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "optsignal",
			Subsystem: "strategy",
			Name:      "errors_total",
			Help:      "Errors by strategy endpoint and error code",
		},
		[]string{"endpoint", "code"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(StrategyLatency, StrategyErrors)
	})
}

// Observe records one endpoint call; code is empty on success.
func Observe(endpoint string, start time.Time, code string) {
	StrategyLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if code != "" {
		StrategyErrors.WithLabelValues(endpoint, code).Inc()
	}
}
