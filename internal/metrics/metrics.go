// Package metrics provides Prometheus instrumentation for the copy tracker.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts recorded trade events, partitioned by status.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_trades_total",
		Help: "Total number of trade events recorded",
	}, []string{"status"})

	// IgnoredTotal counts trades that were not copied, by reason.
	IgnoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_ignored_trades_total",
		Help: "Trade events ignored by the ledger",
	}, []string{"reason"})

	// CopiedNotional tracks cumulative copied notional per side.
	CopiedNotional = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_copied_notional_total",
		Help: "Cumulative copied notional in bankroll units",
	}, []string{"side"})

	// RecordLatency tracks how long recording plus persistence takes.
	RecordLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_record_latency_seconds",
		Help:    "Trade recording latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// RealizedPnL is the account-wide realized P&L.
	RealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_realized_pnl",
		Help: "Realized P&L of the copy account",
	})

	// TotalEquity is the estimated account equity.
	TotalEquity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_total_equity",
		Help: "Bankroll plus realized and unrealized P&L",
	})

	// UnsoldValue is the marked value of open positions.
	UnsoldValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_unsold_value",
		Help: "Marked value of open copy positions",
	})

	// OpenPositions tracks the number of open copy positions.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_open_positions",
		Help: "Number of currently open copy positions",
	})

	// PersistFailures counts snapshot writes that failed after all retries.
	PersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_persist_failures_total",
		Help: "Snapshot writes that failed after retries",
	})

	// PendingAuditRows is the number of audit rows not yet persisted.
	PendingAuditRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_pending_audit_rows",
		Help: "Audit rows waiting to be persisted",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_http_request_duration_seconds",
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

		// Label by route pattern, not raw path, to bound cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
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

// Hijack lets the WebSocket upgrader take over wrapped connections.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
