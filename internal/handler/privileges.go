package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yourorg/campuscore/internal/domain"
	"github.com/yourorg/campuscore/internal/security"
	"github.com/yourorg/campuscore/internal/security/middleware"
)

// GrantHandler handles POST /api/privileges/grant. Granting privileges
// is itself a privileged operation: the caller needs CREATE_ADMIN in
// the grant's scope (super admins bypass as everywhere).
type GrantHandler struct {
	authz  *security.Authorizer
	logger *slog.Logger
}

// NewGrantHandler creates a new grant handler
func NewGrantHandler(authz *security.Authorizer, logger *slog.Logger) *GrantHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GrantHandler{authz: authz, logger: logger}
}

type grantRequest struct {
	UserID    string `json:"user_id"`
	Privilege string `json:"privilege"`
	Scope     string `json:"scope"`
}

func (h *GrantHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())

	var req grantRequest
	if !decodeBody(w, r, &req) {
		return
	}

	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.authz.RequirePrivilege(r.Context(), actor, domain.PrivCreateAdmin, scope); err != nil {
		writeError(w, h.logger, err)
		return
	}

	grant, err := h.authz.GrantPrivilege(r.Context(), domain.PrincipalID(req.UserID), domain.Privilege(req.Privilege), scope, actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"grant_id":   grant.ID,
		"user_id":    string(grant.UserID),
		"scope":      grant.Scope.String(),
		"privileges": grant.Privileges,
	})
}

// RevokeHandler handles POST /api/privileges/revoke
type RevokeHandler struct {
	authz  *security.Authorizer
	logger *slog.Logger
}

// NewRevokeHandler creates a new revoke handler
func NewRevokeHandler(authz *security.Authorizer, logger *slog.Logger) *RevokeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RevokeHandler{authz: authz, logger: logger}
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())

	var req grantRequest
	if !decodeBody(w, r, &req) {
		return
	}

	scope, err := domain.ParseScope(req.Scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.authz.RequirePrivilege(r.Context(), actor, domain.PrivCreateAdmin, scope); err != nil {
		writeError(w, h.logger, err)
		return
	}

	result, err := h.authz.RevokePrivilege(r.Context(), domain.PrincipalID(req.UserID), domain.Privilege(req.Privilege), scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListGrantsHandler handles GET /api/users/{id}/privileges
type ListGrantsHandler struct {
	authz  *security.Authorizer
	grants domain.PrivilegeRepository
	logger *slog.Logger
}

// NewListGrantsHandler creates a new grant-listing handler
func NewListGrantsHandler(authz *security.Authorizer, grants domain.PrivilegeRepository, logger *slog.Logger) *ListGrantsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListGrantsHandler{authz: authz, grants: grants, logger: logger}
}

func (h *ListGrantsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetPrincipalFromContext(r.Context())
	target := domain.PrincipalID(chi.URLParam(r, "id"))

	// Principals may always read their own grants; reading someone
	// else's requires the audit-view privilege.
	if actor != target {
		if err := h.authz.RequirePrivilege(r.Context(), actor, domain.PrivViewAuditLog, domain.GlobalScope()); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	grants, err := h.grants.GrantsFor(r.Context(), target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	type grantResponse struct {
		GrantID    string             `json:"grant_id"`
		Scope      string             `json:"scope"`
		Privileges []domain.Privilege `json:"privileges"`
	}
	items := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		items = append(items, grantResponse{GrantID: g.ID, Scope: g.Scope.String(), Privileges: g.Privileges})
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": string(target), "grants": items})
}
