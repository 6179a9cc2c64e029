package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "guild_economy",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guild_economy",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guild_economy",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guild_economy",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		},
		[]string{"op", "result"},
	)

	ledgerVolume = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guild_economy",
			Subsystem: "ledger",
			Name:      "volume_total",
			Help:      "Sum of amounts moved by successful operations.",
		},
		[]string{"op"},
	)

	guildSupply = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "guild_economy",
			Subsystem: "ledger",
			Name:      "guild_supply",
			Help:      "Total balance held by all accounts of a guild.",
		},
		[]string{"guild_id"},
	)

	gatewayRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guild_economy",
			Subsystem: "gateway",
			Name:      "rejections_total",
			Help:      "Gateway requests rejected before reaching the ledger.",
		},
		[]string{"reason"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		ledgerOperations,
		ledgerVolume,
		guildSupply,
		gatewayRejections,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordLedgerOperation counts one engine call. result is "ok" or an error code.
func RecordLedgerOperation(op, result string, amount int64) {
	ledgerOperations.WithLabelValues(op, result).Inc()
	if result == "ok" && amount > 0 {
		ledgerVolume.WithLabelValues(op).Add(float64(amount))
	}
}

// SetGuildSupply replaces the supply gauge with a fresh snapshot.
func SetGuildSupply(supply map[string]int64) {
	guildSupply.Reset()
	for guild, total := range supply {
		if guild == "" {
			guild = "global"
		}
		guildSupply.WithLabelValues(guild).Set(float64(total))
	}
}

// RecordGatewayRejection counts a request refused by the gateway.
func RecordGatewayRejection(reason string) {
	gatewayRejections.WithLabelValues(reason).Inc()
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := routePattern(r)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routePattern keeps label cardinality bounded by using the matched chi
// pattern instead of the raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
