package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/campuscore/internal/domain"
	"github.com/yourorg/campuscore/internal/security/middleware"
	"github.com/yourorg/campuscore/internal/service"
)

// CreateUserHandler handles POST /api/users
type CreateUserHandler struct {
	lifecycle *service.LifecycleService
	logger    *slog.Logger
}

// NewCreateUserHandler creates a new user-creation handler
func NewCreateUserHandler(lifecycle *service.LifecycleService, logger *slog.Logger) *CreateUserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CreateUserHandler{lifecycle: lifecycle, logger: logger}
}

func (h *CreateUserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())

	var req service.CreateUserInput
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.lifecycle.CreateUser(r.Context(), actor, req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// StatusHandler handles PATCH /api/users/{id}/status
type StatusHandler struct {
	lifecycle *service.LifecycleService
	logger    *slog.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(lifecycle *service.LifecycleService, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{lifecycle: lifecycle, logger: logger}
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())
	target := domain.PrincipalID(chi.URLParam(r, "id"))

	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.lifecycle.SetStatus(r.Context(), actor, target, domain.AccountStatus(req.Status)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": string(target), "status": req.Status})
}

// DeleteHandler handles DELETE /api/users/{id} (soft delete)
type DeleteHandler struct {
	lifecycle *service.LifecycleService
	logger    *slog.Logger
}

// NewDeleteHandler creates a new soft-delete handler
func NewDeleteHandler(lifecycle *service.LifecycleService, logger *slog.Logger) *DeleteHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteHandler{lifecycle: lifecycle, logger: logger}
}

func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())
	target := domain.PrincipalID(chi.URLParam(r, "id"))

	if err := h.lifecycle.SoftDelete(r.Context(), actor, target); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": string(target), "status": "deleted"})
}

// RestoreHandler handles POST /api/users/{id}/restore
type RestoreHandler struct {
	lifecycle *service.LifecycleService
	logger    *slog.Logger
}

// NewRestoreHandler creates a new restore handler
func NewRestoreHandler(lifecycle *service.LifecycleService, logger *slog.Logger) *RestoreHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RestoreHandler{lifecycle: lifecycle, logger: logger}
}

func (h *RestoreHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())
	target := domain.PrincipalID(chi.URLParam(r, "id"))

	if err := h.lifecycle.Restore(r.Context(), actor, target); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": string(target), "status": "restored"})
}

// PurgeHandler handles DELETE /api/users/{id}/permanent: the
// irreversible cascading delete. Returns the deletion summary.
type PurgeHandler struct {
	lifecycle *service.LifecycleService
	logger    *slog.Logger
}

// NewPurgeHandler creates a new permanent-delete handler
func NewPurgeHandler(lifecycle *service.LifecycleService, logger *slog.Logger) *PurgeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeHandler{lifecycle: lifecycle, logger: logger}
}

func (h *PurgeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())
	target := domain.PrincipalID(chi.URLParam(r, "id"))

	summary, err := h.lifecycle.PermanentDelete(r.Context(), actor, target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
