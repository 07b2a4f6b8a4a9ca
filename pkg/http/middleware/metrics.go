package middleware

import (
	"strconv"
	"sync"
	"time"

	applogger "OptSignal/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "optsignal_http_requests_total",
			Help: "HTTP requests by route template and status",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optsignal_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "method"}),
		size: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "optsignal_http_response_size_bytes",
			Help:    "HTTP response body size",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}, []string{"route"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "optsignal_http_in_flight_requests",
			Help: "Requests currently being served",
		}),
	}
}

var (
	defaultHTTPMetrics     *httpMetrics
	defaultHTTPMetricsOnce sync.Once
)

// Metrics records request metrics on the default registry. Requests at or
// above slow are logged as warnings, 5xx responses as errors.
func Metrics(l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	defaultHTTPMetricsOnce.Do(func() {
		defaultHTTPMetrics = newHTTPMetrics(prometheus.DefaultRegisterer)
	})
	return metricsMiddleware(defaultHTTPMetrics, l, slow)
}

// MetricsWithRegisterer is Metrics on a caller-owned registry.
func MetricsWithRegisterer(reg prometheus.Registerer, l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return metricsMiddleware(newHTTPMetrics(reg), l, slow)
}

func metricsMiddleware(m *httpMetrics, l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// labels use the route template so cardinality stays bounded
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			if route == "/metrics" {
				return next(c)
			}

			m.inFlight.Inc()
			start := time.Now()
			if err := next(c); err != nil {
				// write the error now so the recorded status is final
				c.Error(err)
			}
			took := time.Since(start)
			m.inFlight.Dec()

			req, res := c.Request(), c.Response()
			m.requests.WithLabelValues(route, req.Method, strconv.Itoa(res.Status)).Inc()
			m.duration.WithLabelValues(route, req.Method).Observe(took.Seconds())
			m.size.WithLabelValues(route).Observe(float64(res.Size))

			if res.Status < 500 && (slow <= 0 || took < slow) {
				return nil
			}
			fields := []applogger.Field{
				applogger.String("request_id", GetRequestID(c)),
				applogger.String("route", route),
				applogger.String("method", req.Method),
				applogger.Int("status", res.Status),
				applogger.Duration("duration_ms", took),
			}
			if res.Status >= 500 {
				l.Error("http request failed", fields...)
			} else {
				l.Warn("http request slow", fields...)
			}
			return nil
		}
	}
}
