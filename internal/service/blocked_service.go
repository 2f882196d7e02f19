package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/interval"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"go.uber.org/zap"
)

// BlockedIntervalService хранилище закрытых интервалов провайдера.
// Пересечения допустимы: объединение выполняется при расчёте свободного времени.
type BlockedIntervalService struct {
	blocked      BlockedIntervalStore
	availability *AvailabilityService
	logger       *zap.Logger
}

func NewBlockedIntervalService(blocked BlockedIntervalStore, availability *AvailabilityService, logger *zap.Logger) *BlockedIntervalService {
	return &BlockedIntervalService{
		blocked:      blocked,
		availability: availability,
		logger:       logger,
	}
}

// Add создаёт закрытый интервал
func (s *BlockedIntervalService) Add(ctx context.Context, providerID int64, start, end time.Time, reason model.BlockReason, notes *string) (*model.BlockedInterval, error) {
	if _, err := interval.New(start, end); err != nil {
		return nil, err
	}

	if !reason.IsValid() {
		return nil, fmt.Errorf("unknown block reason %q", reason)
	}

	block := &model.BlockedInterval{
		ProviderID: providerID,
		StartTime:  start,
		EndTime:    end,
		Reason:     reason,
		Notes:      notes,
	}

	if err := s.blocked.Create(ctx, block); err != nil {
		return nil, fmt.Errorf("create blocked interval: %w", err)
	}

	s.logger.Info("Blocked interval added",
		zap.Int64("blocked_id", block.ID),
		zap.Int64("provider_id", providerID),
		zap.Time("start_time", start),
		zap.Time("end_time", end),
		zap.String("reason", string(reason)),
	)

	return block, nil
}

// Remove удаляет закрытый интервал провайдера
func (s *BlockedIntervalService) Remove(ctx context.Context, providerID, id int64) error {
	block, err := s.blocked.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get blocked interval: %w", err)
	}

	if block == nil || block.ProviderID != providerID {
		return fmt.Errorf("blocked interval %d: %w", id, ErrNotFound)
	}

	if err := s.blocked.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete blocked interval: %w", err)
	}

	s.logger.Info("Blocked interval removed",
		zap.Int64("blocked_id", id),
		zap.Int64("provider_id", providerID),
	)

	return nil
}

// ListInRange возвращает интервалы, пересекающие [from, to)
func (s *BlockedIntervalService) ListInRange(ctx context.Context, providerID int64, from, to time.Time) ([]*model.BlockedInterval, error) {
	return s.blocked.ListInRange(ctx, providerID, from, to)
}

// BlockOutsideWindow закрывает день целиком, кроме окна [from, to) в минутах от полуночи.
// Создаёт до двух интервалов off_hours через обычное хранилище.
func (s *BlockedIntervalService) BlockOutsideWindow(ctx context.Context, providerID int64, day time.Time, window model.WorkInterval) ([]*model.BlockedInterval, error) {
	if window.StartMinute < 0 || window.EndMinute > minutesPerDay || window.EndMinute <= window.StartMinute {
		return nil, fmt.Errorf("%w: window %s", ErrInvalidInterval, window)
	}

	template, err := s.availability.GetTemplate(ctx, providerID)
	if err != nil {
		return nil, err
	}

	loc, err := template.Location()
	if err != nil {
		return nil, fmt.Errorf("load location: %w", err)
	}

	local := day.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)
	windowStart, windowEnd := window.On(local.Year(), local.Month(), local.Day(), loc)

	var created []*model.BlockedInterval
	for _, part := range []interval.Interval{
		{Start: dayStart, End: windowStart},
		{Start: windowEnd, End: dayEnd},
	} {
		if !part.End.After(part.Start) {
			continue
		}
		block, err := s.Add(ctx, providerID, part.Start, part.End, model.BlockReasonOffHours, nil)
		if err != nil {
			return created, err
		}
		created = append(created, block)
	}

	return created, nil
}
