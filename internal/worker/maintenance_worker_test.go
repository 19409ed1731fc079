package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeSweeper struct {
	purgeCalls   int
	releaseCalls int
	countCalls   int

	purgeErr error
	active   int
}

func (f *fakeSweeper) PurgeExpiredTokens(_ context.Context, _ time.Time) (int64, error) {
	f.purgeCalls++
	if f.purgeErr != nil {
		return 0, f.purgeErr
	}
	return 2, nil
}

func (f *fakeSweeper) ReleaseExpiredLocks(_ context.Context, _ time.Time) (int64, error) {
	f.releaseCalls++
	return 1, nil
}

func (f *fakeSweeper) CountActive(_ context.Context) (int, error) {
	f.countCalls++
	return f.active, nil
}

func newTestWorker(sweeper *fakeSweeper) *MaintenanceWorker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMaintenanceWorker(sweeper, logger, time.Minute)
}

func TestSweepRunsAllMaintenanceTasks(t *testing.T) {
	sweeper := &fakeSweeper{active: 42}
	w := newTestWorker(sweeper)

	w.sweep(context.Background())

	assert.Equal(t, 1, sweeper.purgeCalls)
	assert.Equal(t, 1, sweeper.releaseCalls)
	assert.Equal(t, 1, sweeper.countCalls, "gauge refreshed every sweep")
}

func TestSweepContinuesPastFailures(t *testing.T) {
	sweeper := &fakeSweeper{purgeErr: errors.New("deadlock detected")}
	w := newTestWorker(sweeper)

	w.sweep(context.Background())

	assert.Equal(t, 1, sweeper.releaseCalls, "lock sweep runs despite token sweep failure")
	assert.Equal(t, 1, sweeper.countCalls)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := newTestWorker(sweeper)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}
