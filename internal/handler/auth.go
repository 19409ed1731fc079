package handler

import (
	"log/slog"
	"net/http"

	"github.com/yourorg/campuscore/internal/service"
)

// LoginHandler handles POST /api/auth/login
type LoginHandler struct {
	credentials *service.CredentialService
	logger      *slog.Logger
}

// NewLoginHandler creates a new login handler
func NewLoginHandler(credentials *service.CredentialService, logger *slog.Logger) *LoginHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginHandler{credentials: credentials, logger: logger}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.credentials.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VerifyHandler handles POST /api/auth/verify: redeems a verification
// token and activates the pending account.
type VerifyHandler struct {
	credentials *service.CredentialService
	logger      *slog.Logger
}

// NewVerifyHandler creates a new verification handler
func NewVerifyHandler(credentials *service.CredentialService, logger *slog.Logger) *VerifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerifyHandler{credentials: credentials, logger: logger}
}

func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.credentials.VerifyAccount(r.Context(), req.Token); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// ResetRequestHandler handles POST /api/auth/password-reset/request.
// Always returns 202: the response must not reveal whether the email
// belongs to an account.
type ResetRequestHandler struct {
	credentials *service.CredentialService
	logger      *slog.Logger
}

// NewResetRequestHandler creates a new reset-request handler
func NewResetRequestHandler(credentials *service.CredentialService, logger *slog.Logger) *ResetRequestHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetRequestHandler{credentials: credentials, logger: logger}
}

func (h *ResetRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.credentials.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ResetHandler handles POST /api/auth/password-reset
type ResetHandler struct {
	credentials *service.CredentialService
	logger      *slog.Logger
}

// NewResetHandler creates a new password-reset handler
func NewResetHandler(credentials *service.CredentialService, logger *slog.Logger) *ResetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetHandler{credentials: credentials, logger: logger}
}

func (h *ResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.credentials.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
