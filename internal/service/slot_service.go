package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/interval"
	"go.uber.org/zap"
)

// DefaultSlotGranularity шаг перебора начала слота
const DefaultSlotGranularity = 15 * time.Minute

// SlotService вычисляет свободные для записи моменты начала
type SlotService struct {
	validator   *Validator
	granularity time.Duration
	logger      *zap.Logger
}

func NewSlotService(validator *Validator, granularity time.Duration, logger *zap.Logger) *SlotService {
	if granularity <= 0 {
		granularity = DefaultSlotGranularity
	}
	return &SlotService{
		validator:   validator,
		granularity: granularity,
		logger:      logger,
	}
}

// ComputeAvailableSlots возвращает упорядоченные моменты начала в [rangeStart, rangeEnd),
// для которых запись длительностью duration прошла бы проверку против текущего состояния.
// Сетка выравнивается по местной полуночи провайдера.
func (s *SlotService) ComputeAvailableSlots(ctx context.Context, providerID int64, rangeStart, rangeEnd time.Time, duration time.Duration) ([]time.Time, error) {
	if _, err := interval.New(rangeStart, rangeEnd); err != nil {
		return nil, fmt.Errorf("slot range: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidInterval, duration)
	}

	state, err := s.validator.loadState(ctx, providerID, rangeStart, rangeEnd)
	if err != nil {
		return nil, err
	}

	now := s.validator.now()
	t := state.template
	earliest := now.Add(time.Duration(t.MinNoticeHours) * time.Hour)
	latest := now.In(state.loc).AddDate(0, 0, t.AdvanceBookingDays)
	busy := state.busyIntervals()

	var slots []time.Time
	for day := startOfDay(rangeStart, state.loc); day.Before(rangeEnd); day = day.AddDate(0, 0, 1) {
		if day.After(latest) {
			break
		}
		if state.countOnDay(day, 0) >= t.MaxDailyAppointments {
			continue
		}

		free := interval.Subtract(state.workIntervals(day), busy)
		for _, iv := range free {
			for start := firstGridPoint(day, iv.Start, s.granularity); !start.Add(duration).After(iv.End); start = start.Add(s.granularity) {
				if start.Before(rangeStart) || !start.Before(rangeEnd) {
					continue
				}
				if start.Before(earliest) || start.After(latest) {
					continue
				}
				slots = append(slots, start)
			}
		}
	}

	s.logger.Debug("Slots computed",
		zap.Int64("provider_id", providerID),
		zap.Time("from", rangeStart),
		zap.Time("to", rangeEnd),
		zap.Duration("duration", duration),
		zap.Int("slots", len(slots)),
	)

	return slots, nil
}

// firstGridPoint первая точка сетки day + k*step, не раньше from
func firstGridPoint(day, from time.Time, step time.Duration) time.Time {
	if !from.After(day) {
		return day
	}
	offset := from.Sub(day)
	steps := offset / step
	if offset%step != 0 {
		steps++
	}
	return day.Add(steps * step)
}
