package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by every handler.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Event engine metrics.
var (
	EventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_emitted_total",
			Help: "Domain events appended to the store.",
		},
		[]string{"stream_type"},
	)

	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Domain events successfully applied to projections.",
		},
		[]string{"stream_type"},
	)

	DispatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_dispatch_failures_total",
			Help: "Dispatch attempts that left the event flagged with an error.",
		},
		[]string{"stream_type", "reason"},
	)

	CascadeRows = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cascade_affected_rows",
		Help:    "Rows touched by a single subtree cascade.",
		Buckets: []float64{1, 2, 5, 10, 25, 100, 500},
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		EventsEmitted, EventsProcessed, DispatchFailures, CascadeRows,
	)
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
	} else {
		ready.Set(0)
	}
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath collapses identifier segments so metric label cardinality stays
// bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(p, "/")
	if len(parts) < 4 || parts[1] != "v1" || parts[3] == "" {
		return p
	}
	switch parts[2] {
	case "events":
		// Literal sub-resources keep their names.
		if parts[3] == "pending" || parts[3] == "watch" {
			return p
		}
		if len(parts) == 4 || (len(parts) == 5 && parts[4] == "retry") {
			parts[3] = ":id"
			return strings.Join(parts, "/")
		}
		return p
	case "organizations", "users", "sessions":
		if len(parts) <= 5 {
			parts[3] = ":id"
			return strings.Join(parts, "/")
		}
		return p
	case "streams":
		if len(parts) == 5 {
			parts[3] = ":type"
			parts[4] = ":id"
			return strings.Join(parts, "/")
		}
		return p
	default:
		return p
	}
}

// Instrument wraps next with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
