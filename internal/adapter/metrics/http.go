package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// unmatchedRoute labels requests no route matched, so probing for random
// paths cannot grow the label set.
const unmatchedRoute = "unmatched"

// HTTPMetrics tracks API request volume and latency by route template.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	InFlightGauge   prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status_code"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests.",
		}, []string{"method", "route", "status_code"}),
		InFlightGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of API requests currently being processed.",
		}),
	}

	reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.InFlightGauge)
	return m
}

// Middleware records API requests. Probes, /metrics and the live feed are
// skipped; feed connections are counted by LiveFeedMetrics instead.
func (m *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if skipRoute(route) {
				return next(c)
			}
			if route == "" || route == "/*" {
				route = unmatchedRoute
			}

			m.InFlightGauge.Inc()
			defer m.InFlightGauge.Dec()

			var status string
			timer := prometheus.NewTimer(prometheus.ObserverFunc(func(v float64) {
				m.RequestDuration.WithLabelValues(c.Request().Method, route, status).Observe(v)
				m.RequestsTotal.WithLabelValues(c.Request().Method, route, status).Inc()
			}))

			err := next(c)
			status = statusCode(c, err)
			if isRoutingMiss(err) {
				route = unmatchedRoute
			}
			timer.ObserveDuration()
			return err
		}
	}
}

func skipRoute(route string) bool {
	return route == "/metrics" || route == "/version" ||
		strings.HasPrefix(route, "/health/") || strings.HasPrefix(route, "/ws/")
}

// statusCode prefers the code of an echo error that has not been rendered
// yet, since the response still reads 200 at that point.
func statusCode(c echo.Context, err error) string {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && !c.Response().Committed {
		return strconv.Itoa(httpErr.Code)
	}
	if err != nil && !c.Response().Committed {
		return strconv.Itoa(http.StatusInternalServerError)
	}
	return strconv.Itoa(c.Response().Status)
}

// isRoutingMiss reports the router's own not-found error, which echo
// returns for paths no route matched.
func isRoutingMiss(err error) bool {
	var httpErr *echo.HTTPError
	return errors.As(err, &httpErr) && httpErr.Code == http.StatusNotFound
}
