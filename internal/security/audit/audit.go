package audit

import (
	"context"
	"log/slog"
	"time"
)

// Logger emits structured audit lines to the application log. It runs
// alongside the database audit trail: the log line is immediate and
// searchable, the database row is durable.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (al *Logger) LogAction(ctx context.Context, actorID, action, resource, resourceID, status, details string) {
	requestID := ""
	if reqID := ctx.Value("request_id"); reqID != nil {
		requestID = reqID.(string)
	}

	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("actor_id", actorID),
		slog.String("status", status),
		slog.String("details", details),
		slog.String("request_id", requestID),
		slog.Time("timestamp", time.Now()),
	)
}

func (al *Logger) LogLifecycle(ctx context.Context, actorID, action, userID, status, details string) {
	al.LogAction(ctx, actorID, action, "user", userID, status, details)
}

func (al *Logger) LogDenied(ctx context.Context, actorID, reason string) {
	al.LogAction(ctx, actorID, "access_denied", "api", "", "denied", reason)
}
