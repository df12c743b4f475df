package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by surface, route, method and status class",
		},
		[]string{"surface", "route", "method", "class"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request latency by surface and route",
			Buckets:   []float64{0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"surface", "route"},
	)

	apiInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "in_flight_requests",
			Help:      "API requests currently being served",
		},
		[]string{"surface"},
	)
)

func init() {
	prometheus.MustRegister(apiRequestsTotal, apiRequestDuration, apiInFlight)
}

// HTTPMiddleware records per-route API traffic. Routes are labelled by their
// chi pattern so user and item ids never become label values.
func HTTPMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			pathSurface := surface(r.URL.Path)
			apiInFlight.WithLabelValues(pathSurface).Inc()
			defer apiInFlight.WithLabelValues(pathSurface).Dec()

			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := unmatchedRoute
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			apiRequestsTotal.WithLabelValues(pathSurface, route, r.Method, statusClass(ww.Status())).Inc()
			apiRequestDuration.WithLabelValues(pathSurface, route).Observe(time.Since(start).Seconds())
		})
	}
}

// surface groups paths into learner, catalog and ops traffic.
func surface(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/users/"):
		return "learner"
	case strings.HasPrefix(path, "/v1/items"):
		return "catalog"
	default:
		return "ops"
	}
}

// statusClass maps a status code to 2xx..5xx. Handlers that never write report 200.
func statusClass(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	switch code / 100 {
	case 1, 2:
		return "2xx"
	case 3:
		return "3xx"
	case 4:
		return "4xx"
	default:
		return "5xx"
	}
}
