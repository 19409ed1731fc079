package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/campuscore/internal/security/audit"
)

func TestPublicPath(t *testing.T) {
	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/api/auth/login", "/api/auth/verify"} {
		assert.True(t, publicPath(path), "path %q", path)
	}
	for _, path := range []string{"/api/users", "/api/users/u1/status", "/api/departments"} {
		assert.False(t, publicPath(path), "path %q", path)
	}
}

func TestAuditMiddlewareLogsDeniedOutcomes(t *testing.T) {
	var buf bytes.Buffer
	auditLog := audit.NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	denied := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusForbidden)
	})
	handler := AuditMiddleware(auditLog)(denied)

	req := httptest.NewRequest(http.MethodDelete, "/api/users/u1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, buf.String(), "access_denied")
	assert.Contains(t, buf.String(), "DELETE /api/users/u1")
}

func TestAuditMiddlewareQuietOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	auditLog := audit.NewLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := AuditMiddleware(auditLog)(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/departments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, buf.String(), "access_denied")
}
