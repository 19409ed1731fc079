package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/campuscore/internal/domain"
	"github.com/yourorg/campuscore/internal/security/audit"
	"github.com/yourorg/campuscore/internal/security/auth"
	"github.com/yourorg/campuscore/internal/security/ratelimit"
)

type PrincipalContextKey struct{}
type ClaimsContextKey struct{}

// publicPath reports whether the path is reachable without a token:
// health probes, metrics and the authentication flows themselves.
func publicPath(path string) bool {
	if path == "/healthz" || path == "/readyz" || path == "/metrics" {
		return true
	}
	return strings.HasPrefix(path, "/api/auth/")
}

func JWTMiddleware(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing auth"}`, http.StatusUnauthorized)
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				http.Error(w, `{"error":"invalid auth"}`, http.StatusUnauthorized)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				log.Debug("token rejected", slog.String("error", err.Error()))
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			ctx = context.WithValue(ctx, PrincipalContextKey{}, domain.PrincipalID(claims.UserID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

const (
	loginMaxAttempts = 10
	loginWindow      = time.Minute
)

// RateLimitMiddleware limits authenticated requests per principal.
// Login gets its own stricter per-address limit; the other public
// paths pass through.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/auth/login" {
				if !limiter.AllowStrict(r.RemoteAddr, loginMaxAttempts, loginWindow) {
					log.Warn("login rate limit exceeded", slog.String("remote_addr", r.RemoteAddr))
					http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			principal := ""
			if p := r.Context().Value(PrincipalContextKey{}); p != nil {
				principal = string(p.(domain.PrincipalID))
			}

			if !limiter.Allow(principal) {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuditMiddleware logs the initiation of mutating requests and every
// denied outcome. Successful outcomes are audited by the services; this
// catches the attempt itself and the rejections that never reach them.
func AuditMiddleware(auditLog *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actorID := ""
			if c := r.Context().Value(ClaimsContextKey{}); c != nil {
				actorID = c.(*auth.Claims).UserID
			}

			switch {
			case r.Method == http.MethodPost && r.URL.Path == "/api/users":
				auditLog.LogLifecycle(r.Context(), actorID, "create", "", "initiated", "")
			case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/users/"):
				target := strings.TrimPrefix(r.URL.Path, "/api/users/")
				target = strings.SplitN(target, "/", 2)[0]
				auditLog.LogLifecycle(r.Context(), actorID, "delete", target, "initiated", "")
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusUnauthorized || rec.status == http.StatusForbidden {
				auditLog.LogDenied(r.Context(), actorID, r.Method+" "+r.URL.Path)
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func GetPrincipalFromContext(ctx context.Context) domain.PrincipalID {
	if p := ctx.Value(PrincipalContextKey{}); p != nil {
		return p.(domain.PrincipalID)
	}
	return ""
}

func GetClaimsFromContext(ctx context.Context) *auth.Claims {
	if c := ctx.Value(ClaimsContextKey{}); c != nil {
		return c.(*auth.Claims)
	}
	return nil
}
