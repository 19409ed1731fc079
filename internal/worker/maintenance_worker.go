package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/yourorg/campuscore/internal/observability/metrics"
)

// AccountSweeper is the slice of the user repository the maintenance
// worker needs: the two expiry sweeps plus the active-account count.
type AccountSweeper interface {
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
	ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context) (int, error)
}

// MaintenanceWorker periodically sweeps the identity table: expired
// verification and reset tokens are purged, expired login locks are
// released, and the active-accounts gauge is refreshed. The sweeps are
// idempotent single statements, so a missed or doubled tick is harmless.
type MaintenanceWorker struct {
	users    AccountSweeper
	logger   *slog.Logger
	interval time.Duration
}

// NewMaintenanceWorker creates a new maintenance worker
func NewMaintenanceWorker(users AccountSweeper, logger *slog.Logger, interval time.Duration) *MaintenanceWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceWorker{
		users:    users,
		logger:   logger,
		interval: interval,
	}
}

// Start begins the maintenance loop. Blocks until the context ends.
func (w *MaintenanceWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("maintenance worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("maintenance worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *MaintenanceWorker) sweep(ctx context.Context) {
	now := time.Now()

	purged, err := w.users.PurgeExpiredTokens(ctx, now)
	if err != nil {
		w.logger.Error("token sweep failed", slog.String("error", err.Error()))
		metrics.ObserveSweep("tokens", "error")
	} else {
		metrics.ObserveSweep("tokens", "success")
		if purged > 0 {
			w.logger.Info("expired tokens purged", slog.Int64("count", purged))
		}
	}

	released, err := w.users.ReleaseExpiredLocks(ctx, now)
	if err != nil {
		w.logger.Error("lock sweep failed", slog.String("error", err.Error()))
		metrics.ObserveSweep("locks", "error")
	} else {
		metrics.ObserveSweep("locks", "success")
		if released > 0 {
			w.logger.Info("expired locks released", slog.Int64("count", released))
		}
	}

	active, err := w.users.CountActive(ctx)
	if err != nil {
		w.logger.Error("active-account count failed", slog.String("error", err.Error()))
		return
	}
	metrics.SetActiveAccounts(active)
}
