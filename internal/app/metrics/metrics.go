package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rwa_oracle",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rwa_oracle",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rwa_oracle",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	priceUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rwa_oracle",
			Subsystem: "engine",
			Name:      "price_updates_total",
			Help:      "Total number of price update attempts by outcome.",
		},
		[]string{"asset", "result"},
	)

	priceUpdateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rwa_oracle",
			Subsystem: "engine",
			Name:      "price_update_duration_seconds",
			Help:      "Duration of the full price update pipeline.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"asset"},
	)

	yieldDeviation = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rwa_oracle",
			Subsystem: "engine",
			Name:      "yield_deviation_percent",
			Help:      "Observed absolute yield deviation per update, in percent.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 0.01% to ~20%
		},
		[]string{"asset"},
	)

	sourceFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rwa_oracle",
			Subsystem: "sources",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of external price and FX source fetches.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"kind", "success"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		priceUpdates,
		priceUpdateDuration,
		yieldDeviation,
		sourceFetchDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
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

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordPriceUpdate records one pass through the update pipeline.
func RecordPriceUpdate(assetID, result string, duration time.Duration) {
	if assetID == "" {
		assetID = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	priceUpdates.WithLabelValues(assetID, result).Inc()
	priceUpdateDuration.WithLabelValues(assetID).Observe(duration.Seconds())
}

// ObserveDeviation records the absolute yield deviation measured for an
// update, whether it was accepted or not.
func ObserveDeviation(assetID string, deviation float64) {
	if assetID == "" {
		assetID = "unknown"
	}
	if deviation < 0 {
		deviation = -deviation
	}
	yieldDeviation.WithLabelValues(assetID).Observe(deviation)
}

// RecordSourceFetch records the latency of an external source call.
func RecordSourceFetch(kind string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	sourceFetchDuration.WithLabelValues(kind, strconv.FormatBool(success)).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if parts[0] != "assets" {
		return "/" + parts[0]
	}
	if len(parts) == 1 {
		return "/assets"
	}
	if len(parts) == 2 {
		return "/assets/:asset"
	}
	return "/assets/:asset/" + parts[2]
}
