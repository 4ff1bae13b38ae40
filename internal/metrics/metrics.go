// Package metrics provides Prometheus instrumentation for the marketplace.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// EventsRelayed counts on-chain events relayed to clients, by kind.
	EventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerloop_events_relayed_total",
		Help: "On-chain events relayed to connected clients",
	}, []string{"kind"})

	// DedupeDrops counts events skipped because they were already delivered.
	DedupeDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerloop_dedupe_drops_total",
		Help: "On-chain events dropped by the dedupe cache",
	})

	// PollErrors counts failed poll cycles.
	PollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerloop_poll_errors_total",
		Help: "Contract poll cycles that failed and will be retried",
	})

	// PollCycles counts completed poll cycles.
	PollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerloop_poll_cycles_total",
		Help: "Contract poll cycles completed",
	})

	// PurchasesTotal counts successful product purchases.
	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerloop_purchases_total",
		Help: "Products successfully purchased",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "peerloop_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerloop_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "peerloop_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the raw path for the label; the API surface is small enough
		// that cardinality stays bounded.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
