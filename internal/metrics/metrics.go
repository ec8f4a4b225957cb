// Package metrics provides Prometheus instrumentation for the valuation engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ValuationsTotal counts user valuations, partitioned by outcome.
	ValuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandglass_valuations_total",
		Help: "Total number of user valuations computed",
	}, []string{"outcome"})

	ValuationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sandglass_valuation_latency_seconds",
		Help:    "User valuation latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// MarketsSkipped counts markets left out of a valuation, by reason.
	MarketsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandglass_markets_skipped_total",
		Help: "Markets skipped during valuation",
	}, []string{"reason"})

	// RegisteredMarkets tracks the number of markets in the registry.
	RegisteredMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sandglass_registered_markets",
		Help: "Number of markets in the registry",
	})

	// RPCLatency tracks ledger RPC round trips by call.
	RPCLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sandglass_rpc_latency_seconds",
		Help:    "Ledger RPC latency in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"call"})

	// OracleFailures counts oracle lookups that degraded to a zero price.
	OracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandglass_oracle_failures_total",
		Help: "Oracle lookups that fell back to zero",
	}, []string{"feed"})

	OracleCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sandglass_oracle_cache_hits_total",
		Help: "Oracle prices served from cache",
	})

	// YieldRefreshes counts quotes where the projected yield was recomputed
	// from spot instead of read from the stored market config.
	YieldRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandglass_yield_refreshes_total",
		Help: "Quotes with a spot-refreshed yield projection",
	}, []string{"symbol"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sandglass_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sandglass_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sandglass_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveRPC records the latency of one RPC call started at start.
func ObserveRPC(call string, start time.Time) {
	RPCLatency.WithLabelValues(call).Observe(time.Since(start).Seconds())
}

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

		// Wallet and market addresses are path params; label by route pattern.
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
