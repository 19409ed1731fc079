package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetActiveAccounts(t *testing.T) {
	SetActiveAccounts(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(activeAccounts))

	// Negative counts clamp to zero instead of poisoning the gauge.
	SetActiveAccounts(-3)
	assert.Equal(t, 0.0, testutil.ToFloat64(activeAccounts))
}

func TestMetricPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/api/users/9f2c1a7e-0b69-4d5e-8a3f-1c2d3e4f5a6b/status", "/api/users/:id/status"},
		{"/api/users/9f2c1a7e-0b69-4d5e-8a3f-1c2d3e4f5a6b", "/api/users/:id"},
		{"/api/users/u1/privileges", "/api/users/:id/privileges"},
		{"/api/users", "/api/users"},
		{"/api/departments", "/api/departments"},
		{"/healthz", "/healthz"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, metricPath(tc.in), "path %q", tc.in)
	}
}

func TestObservePrivilegeCheck(t *testing.T) {
	before := testutil.ToFloat64(privilegeChecks.WithLabelValues("denied"))
	ObservePrivilegeCheck("denied")
	ObservePrivilegeCheck("denied")
	assert.Equal(t, before+2, testutil.ToFloat64(privilegeChecks.WithLabelValues("denied")))

	bypass := testutil.ToFloat64(privilegeChecks.WithLabelValues("bypass"))
	ObservePrivilegeCheck("bypass")
	assert.Equal(t, bypass+1, testutil.ToFloat64(privilegeChecks.WithLabelValues("bypass")))
}
