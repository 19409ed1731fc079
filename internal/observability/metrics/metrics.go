package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscore_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campuscore_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	accountsProvisioned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscore_accounts_provisioned_total",
		Help: "Count of account provisioning attempts by role and result",
	}, []string{"role", "result"})

	provisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campuscore_provision_duration_seconds",
		Help:    "Duration of account provisioning attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	lifecycleTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscore_lifecycle_transitions_total",
		Help: "Count of lifecycle operations by operation and result",
	}, []string{"operation", "result"})

	privilegeChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscore_privilege_checks_total",
		Help: "Count of privilege checks by decision",
	}, []string{"decision"})

	maintenanceSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campuscore_maintenance_sweeps_total",
		Help: "Count of background maintenance sweeps by kind and result",
	}, []string{"kind", "result"})

	activeAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "campuscore_active_accounts",
		Help: "Number of accounts currently in the active status",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveProvision records one account provisioning attempt.
func ObserveProvision(role, result string, duration time.Duration) {
	accountsProvisioned.WithLabelValues(role, result).Inc()
	provisionDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveTransition records a lifecycle operation outcome.
func ObserveTransition(operation, result string) {
	lifecycleTransitions.WithLabelValues(operation, result).Inc()
}

// ObservePrivilegeCheck records an authorization decision.
func ObservePrivilegeCheck(decision string) {
	privilegeChecks.WithLabelValues(decision).Inc()
}

// ObserveSweep increments the maintenance sweep counter.
func ObserveSweep(kind, result string) {
	maintenanceSweeps.WithLabelValues(kind, result).Inc()
}

// SetActiveAccounts sets the active account gauge to a specific count.
func SetActiveAccounts(count int) {
	if count < 0 {
		count = 0
	}
	activeAccounts.Set(float64(count))
}
