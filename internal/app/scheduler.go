package app

import (
	"context"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/service"
	"go.uber.org/zap"
)

// Reconciler периодическая сверка с внешними календарями
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]*service.SyncReport, error)
}

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	reconciler Reconciler
	interval   time.Duration
	logger     *zap.Logger
	stopChan   chan struct{}
	done       chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(reconciler Reconciler, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		reconciler: reconciler,
		interval:   interval,
		logger:     logger,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler", zap.Duration("sync_interval", s.interval))

	go s.runSyncTask(ctx)
}

// Stop останавливает фоновые задачи и ждёт завершения текущего прохода
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
	<-s.done
}

func (s *Scheduler) runSyncTask(ctx context.Context) {
	defer close(s.done)

	// Первый запуск сразу при старте
	s.reconcile(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reconcile(ctx)
		case <-s.stopChan:
			s.logger.Info("Sync task stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Sync task cancelled")
			return
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	started := time.Now()

	reports, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.Error("Reconcile failed for some providers", zap.Error(err))
	}

	var created, updated, deleted, conflicted, failed int
	for _, r := range reports {
		created += r.Created
		updated += r.Updated
		deleted += r.Deleted
		conflicted += r.Conflicted
		failed += r.Failed
	}

	s.logger.Info("Reconcile pass completed",
		zap.Int("providers", len(reports)),
		zap.Int("created", created),
		zap.Int("updated", updated),
		zap.Int("deleted", deleted),
		zap.Int("conflicted", conflicted),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(started)),
	)
}
