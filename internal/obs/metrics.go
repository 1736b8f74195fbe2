package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
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
)

// Permission core metrics
var (
	bootstrapAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bootstrap_attempts_total",
			Help: "First-admin bootstrap attempts by outcome.",
		},
		[]string{"outcome"},
	)

	permissionChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_checks_total",
			Help: "Admin permission checks by result.",
		},
		[]string{"result"},
	)

	adminMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_mutations_total",
			Help: "Privileged mutations applied, by action.",
		},
		[]string{"action"},
	)

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audit_write_failures_total",
		Help: "Audit records that could not be persisted.",
	})

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

var initOnce sync.Once

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			bootstrapAttempts, permissionChecks, adminMutations, auditWriteFailures, ready,
		)
	})
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBootstrap counts a first-admin attempt with the given outcome
// (granted, lost_race, already_admin, unauthenticated, error).
func ObserveBootstrap(outcome string) {
	bootstrapAttempts.WithLabelValues(outcome).Inc()
}

// ObservePermissionCheck counts an admin permission check (granted, denied, error).
func ObservePermissionCheck(result string) {
	permissionChecks.WithLabelValues(result).Inc()
}

// ObserveAdminMutation counts a successfully applied privileged mutation.
func ObserveAdminMutation(action string) {
	adminMutations.WithLabelValues(action).Inc()
}

// IncAuditFailure counts an audit record that was dropped.
func IncAuditFailure() {
	auditWriteFailures.Inc()
}

// SetReady records readiness probe state.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument measures request rate, latency and in-flight count.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var idCollections = map[string]bool{
	"profiles": true,
	"admins":   true,
}

// CanonicalPath collapses per-user path segments so metric label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) == 3 && parts[0] == "v1" && idCollections[parts[1]] {
		return "/v1/" + parts[1] + "/:id"
	}
	return raw
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
