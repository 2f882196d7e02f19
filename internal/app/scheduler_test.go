package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) ReconcileAll(ctx context.Context) ([]*service.SyncReport, error) {
	r.calls.Add(1)
	return []*service.SyncReport{{ProviderID: 1, Created: 1}}, r.err
}

func TestSchedulerRunsImmediatelyAndOnTicks(t *testing.T) {
	reconciler := &countingReconciler{}
	s := NewScheduler(reconciler, 10*time.Millisecond, zap.NewNop())

	s.Start(context.Background())

	assert.Eventually(t, func() bool { return reconciler.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	stopped := reconciler.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, reconciler.calls.Load())
}

func TestSchedulerKeepsRunningAfterErrors(t *testing.T) {
	reconciler := &countingReconciler{err: errors.New("calendar unavailable")}
	s := NewScheduler(reconciler, 10*time.Millisecond, zap.NewNop())

	s.Start(context.Background())
	defer s.Stop()

	assert.Eventually(t, func() bool { return reconciler.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	reconciler := &countingReconciler{}
	s := NewScheduler(reconciler, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	select {
	case <-s.done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
	assert.Equal(t, int32(1), reconciler.calls.Load())
}

func TestNewLoggerModes(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		logger := NewLogger(env)
		assert.NotNil(t, logger)
		assert.Equal(t, env == "development", logger.Core().Enabled(zap.DebugLevel), env)
	}
}
