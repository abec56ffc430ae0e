package obs

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbound API call metrics.
var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nivaran_api_requests_total",
			Help: "Total number of outbound API requests.",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nivaran_api_request_duration_seconds",
			Help:    "Outbound API request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	expiryWarnings = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nivaran_session_expiry_warnings_total",
		Help: "Times the session entered the expiring-soon state.",
	})

	forcedLogouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nivaran_session_forced_logouts_total",
		Help: "Logouts forced by an invalid, missing or expired credential.",
	})
)

var initOnce sync.Once

// Init registers the client metrics in the default registry. Repeated calls
// after the first are no-ops.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(apiRequestsTotal, apiRequestDuration, expiryWarnings, forcedLogouts)
	})
}

// ObserveAPICall records one settled outbound request.
func ObserveAPICall(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	apiRequestsTotal.WithLabelValues(method, path, code).Inc()
	apiRequestDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
}

// CountExpiryWarning records a transition into the expiring-soon state.
func CountExpiryWarning() { expiryWarnings.Inc() }

// CountForcedLogout records a logout the client forced on its own.
func CountForcedLogout() { forcedLogouts.Inc() }
