package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yourorg/campuscore/internal/handler"
	"github.com/yourorg/campuscore/internal/infrastructure/logger"
	"github.com/yourorg/campuscore/internal/infrastructure/redis"
	"github.com/yourorg/campuscore/internal/migrations"
	"github.com/yourorg/campuscore/internal/notification"
	"github.com/yourorg/campuscore/internal/observability/metrics"
	"github.com/yourorg/campuscore/internal/observability/tracing"
	"github.com/yourorg/campuscore/internal/repository"
	"github.com/yourorg/campuscore/internal/security"
	"github.com/yourorg/campuscore/internal/security/audit"
	"github.com/yourorg/campuscore/internal/security/auth"
	"github.com/yourorg/campuscore/internal/security/middleware"
	"github.com/yourorg/campuscore/internal/security/ratelimit"
	"github.com/yourorg/campuscore/internal/service"
	"github.com/yourorg/campuscore/internal/worker"
	"github.com/yourorg/campuscore/pkg/config"
	"github.com/yourorg/campuscore/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting CampusCore server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, "campuscore", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pool, err := database.NewConnectionPool(ctx, cfg.Database, log)
	if err != nil {
		log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		log.Error("failed to set migration dialect", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := goose.UpContext(ctx, pool.GetDB(), "."); err != nil {
		log.Error("failed to run migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// Repositories.
	db := pool.GetDB()
	userRepo := repository.NewPostgresUserRepository(db, log)
	adminRepo := repository.NewPostgresAdminRepository(db, log)
	facultyRepo := repository.NewPostgresFacultyRepository(db, log)
	studentRepo := repository.NewPostgresStudentRepository(db, log)
	staffRepo := repository.NewPostgresStaffRepository(db, log)
	deptRepo := repository.NewPostgresDepartmentRepository(db, log)
	grantRepo := repository.NewPostgresPrivilegeRepository(db, log)
	auditRepo := repository.NewPostgresAuditRepository(db, log)
	store := repository.NewPostgresLifecycleStore(db, auditRepo, log)

	// Security components.
	grantCache := redis.NewGrantCache(redisClient, log)
	authorizer := security.NewAuthorizer(adminRepo, grantRepo, deptRepo, grantCache, log)
	policy := security.NewHierarchyPolicy(log)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, "campuscore")
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, time.Minute)
	auditLogger := audit.NewLogger(log)

	// Services.
	notifier := notification.NewReliableSender(notification.NewLogSender(log), log)
	lifecycle := service.NewLifecycleService(
		service.Repositories{
			Users:       userRepo,
			Admins:      adminRepo,
			Faculty:     facultyRepo,
			Students:    studentRepo,
			Staff:       staffRepo,
			Departments: deptRepo,
		},
		store, authorizer, policy, notifier, auditRepo, log,
	)
	credentials := service.NewCredentialService(userRepo, tokenManager, notifier, auditRepo, log)

	healthHandler := handler.NewHealthHandler(pool, redisClient, log)

	r := chi.NewRouter()
	r.Use(withRequestID(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.ValidateJSONContentType(log))
	r.Use(middleware.JWTMiddleware(tokenManager, log))
	r.Use(middleware.RateLimitMiddleware(rateLimiter, log))
	r.Use(middleware.AuditMiddleware(auditLogger))
	r.Use(metrics.HTTPMetricsMiddleware)

	r.Get("/healthz", healthHandler.Health)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/auth/login", handler.NewLoginHandler(credentials, log))
		r.Method(http.MethodPost, "/auth/verify", handler.NewVerifyHandler(credentials, log))
		r.Method(http.MethodPost, "/auth/password-reset/request", handler.NewResetRequestHandler(credentials, log))
		r.Method(http.MethodPost, "/auth/password-reset", handler.NewResetHandler(credentials, log))

		r.Method(http.MethodPost, "/users", handler.NewCreateUserHandler(lifecycle, log))
		r.Method(http.MethodPatch, "/users/{id}/status", handler.NewStatusHandler(lifecycle, log))
		r.Method(http.MethodDelete, "/users/{id}", handler.NewDeleteHandler(lifecycle, log))
		r.Method(http.MethodPost, "/users/{id}/restore", handler.NewRestoreHandler(lifecycle, log))
		r.Method(http.MethodDelete, "/users/{id}/permanent", handler.NewPurgeHandler(lifecycle, log))
		r.Method(http.MethodGet, "/users/{id}/privileges", handler.NewListGrantsHandler(authorizer, grantRepo, log))

		r.Method(http.MethodPost, "/privileges/grant", handler.NewGrantHandler(authorizer, log))
		r.Method(http.MethodPost, "/privileges/revoke", handler.NewRevokeHandler(authorizer, log))

		r.Method(http.MethodGet, "/departments", handler.NewDepartmentsHandler(deptRepo, log))
	})

	rootHandler := otelhttp.NewHandler(r, "campuscore")

	maintenance := worker.NewMaintenanceWorker(userRepo, log, time.Duration(cfg.MaintenanceIntervalMinutes)*time.Minute)
	go maintenance.Start(ctx)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Int("rate_limit", cfg.RateLimitPerMinute),
		slog.String("rate_limit_window", "1m"),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stop the maintenance worker
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// withRequestID attaches a request ID to the context and response
// headers for traceability.
func withRequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := generateRequestID()
			w.Header().Set("X-Request-ID", reqID)

			ctx := context.WithValue(r.Context(), "request_id", reqID) //nolint:staticcheck // string key shared with the audit logger
			start := time.Now()

			next.ServeHTTP(w, r.WithContext(ctx))

			log.Debug("request handled",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func generateRequestID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
