package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/campuscore/internal/domain"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domain.Validationf("bad input"), http.StatusBadRequest},
		{"missing department", domain.ErrMissingDepartment, http.StatusBadRequest},
		{"forbidden", domain.Forbiddenf("nope"), http.StatusForbidden},
		{"not found", domain.NotFoundf("gone"), http.StatusNotFound},
		{"conflict", domain.Conflictf("dup"), http.StatusConflict},
		{"aborted transaction", errors.Join(domain.ErrTxAborted, errors.New("db down")), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, logger, tc.err)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	writeError(rec, logger, errors.New("pq: connection refused on 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}
