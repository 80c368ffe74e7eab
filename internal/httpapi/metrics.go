package httpapi

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// httpMetrics holds the Prometheus instruments of one server. Each server
// owns its registry so repeated construction never trips duplicate
// registration.
type httpMetrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	requestDur    *prometheus.HistogramVec
}

func newHTTPMetrics() *httpMetrics {
	m := &httpMetrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pipevet",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),
		requestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pipevet",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds by method, route, and status code.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(m.requestsTotal, m.requestDur)
	return m
}

// middleware records count and latency per completed request. The echo route
// pattern keeps label cardinality bounded regardless of path parameters.
func (m *httpMetrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			labels := prometheus.Labels{
				"method": c.Request().Method,
				"route":  route,
				"status": strconv.Itoa(status),
			}
			m.requestsTotal.With(labels).Inc()
			m.requestDur.With(labels).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
