// Package metrics provides Prometheus instrumentation for the live engine.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WagersTotal counts accepted wagers, partitioned by option key.
	WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zestbet_wagers_total",
		Help: "Total number of wagers accepted",
	}, []string{"option"})

	// WagerRejections counts placement failures by reason.
	WagerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zestbet_wager_rejections_total",
		Help: "Wagers rejected at validation",
	}, []string{"reason"})

	// WagerLatency tracks end-to-end placement latency.
	WagerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "zestbet_wager_latency_seconds",
		Help:    "Wager placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SettlementsTotal counts market settlements, partitioned by outcome
	// kind ("settled" or "void").
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zestbet_settlements_total",
		Help: "Total number of market settlements",
	}, []string{"kind"})

	// PayoutTotal accumulates credited winnings.
	PayoutTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zestbet_payout_total",
		Help: "Cumulative amount credited to winners",
	})

	// ActiveRooms tracks the number of live betting rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zestbet_active_rooms",
		Help: "Number of live betting rooms in memory",
	})

	// RoomParticipants tracks connected room participants across all rooms.
	RoomParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zestbet_room_participants",
		Help: "Number of connected room participants",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zestbet_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zestbet_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zestbet_http_request_duration_seconds",
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

// statusWriter wraps http.ResponseWriter to capture the status code. It
// passes Flush and Hijack through to the underlying writer so streaming
// responses and WebSocket upgrades work behind the middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
