package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/events"
	"github.com/Freeeeeet/booking_engine/internal/interval"
	"github.com/Freeeeeet/booking_engine/internal/lock"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/recurrence"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingRequest запрос клиента на одну запись или серию
type BookingRequest struct {
	ProviderID int64
	ClientID   int64
	Start      time.Time
	Duration   time.Duration
	Recurrence *model.Recurrence
	// InitialStatus pending или confirmed (автоподтверждение провайдера); пусто - pending
	InitialStatus model.AppointmentStatus
}

// Candidates разворачивает запрос в интервалы всех вхождений
func (r BookingRequest) Candidates() ([]interval.Interval, error) {
	if r.Duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidInterval, r.Duration)
	}

	if r.Recurrence == nil {
		return []interval.Interval{{Start: r.Start, End: r.Start.Add(r.Duration)}}, nil
	}

	starts, err := recurrence.Rule{
		Start:     r.Start,
		Frequency: r.Recurrence.Frequency,
		EndDate:   r.Recurrence.EndDate,
	}.Expand()
	if err != nil {
		return nil, err
	}

	candidates := make([]interval.Interval, 0, len(starts))
	for _, start := range starts {
		candidates = append(candidates, interval.Interval{Start: start, End: start.Add(r.Duration)})
	}
	return candidates, nil
}

// BookingService координатор записи: все изменения записей провайдера проходят
// через его секцию, внутри которой состояние проверяется заново
type BookingService struct {
	validator    *Validator
	appointments AppointmentStore
	locker       lock.Locker
	bus          events.Bus
	logger       *zap.Logger
	now          func() time.Time
}

func NewBookingService(
	validator *Validator,
	appointments AppointmentStore,
	locker lock.Locker,
	bus events.Bus,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		validator:    validator,
		appointments: appointments,
		locker:       locker,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
	}
}

// ValidateCandidate проверяет интервал без записи
func (s *BookingService) ValidateCandidate(ctx context.Context, providerID int64, candidate interval.Interval, excludeID int64) (*ValidationResult, error) {
	return s.validator.ValidateCandidate(ctx, providerID, candidate, excludeID)
}

// PreviewBooking разворачивает и проверяет запрос без сохранения
func (s *BookingService) PreviewBooking(ctx context.Context, req BookingRequest) ([]*ValidationResult, error) {
	candidates, err := req.Candidates()
	if err != nil {
		return nil, err
	}
	return s.validator.ValidateSeries(ctx, req.ProviderID, candidates, 0)
}

// RequestBooking создаёт запись или всю серию целиком.
// Если хотя бы одно вхождение не проходит проверку, не создаётся ничего.
func (s *BookingService) RequestBooking(ctx context.Context, req BookingRequest) ([]*model.Appointment, error) {
	status := req.InitialStatus
	if status == "" {
		status = model.AppointmentStatusPending
	}
	if status != model.AppointmentStatusPending && status != model.AppointmentStatusConfirmed {
		return nil, fmt.Errorf("%w: initial status %q", ErrInvalidTransition, status)
	}

	candidates, err := req.Candidates()
	if err != nil {
		return nil, err
	}

	var seriesID *uuid.UUID
	if req.Recurrence != nil {
		id := uuid.New()
		seriesID = &id
	}

	now := s.now()
	appointments := make([]*model.Appointment, 0, len(candidates))
	for _, c := range candidates {
		appointments = append(appointments, &model.Appointment{
			ProviderID:        req.ProviderID,
			ClientID:          req.ClientID,
			StartTime:         c.Start,
			EndTime:           c.End,
			Status:            status,
			Recurrence:        req.Recurrence,
			SeriesID:          seriesID,
			ExternalSyncState: model.SyncStateUnsynced,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	_, err = s.ReserveAndCommit(ctx, req.ProviderID, candidates, 0, func(ctx context.Context) error {
		return s.appointments.CreateBatch(ctx, appointments)
	})
	if err != nil {
		var conflict *BookingConflictError
		if errors.As(err, &conflict) {
			s.logger.Info("Booking rejected",
				zap.Int64("provider_id", req.ProviderID),
				zap.Int64("client_id", req.ClientID),
				zap.Int("occurrences", len(candidates)),
				zap.Int("failed", len(conflict.Failed())),
			)
		}
		return nil, err
	}

	ids := appointmentIDs(appointments)
	s.logger.Info("Booking committed",
		zap.Int64("provider_id", req.ProviderID),
		zap.Int64("client_id", req.ClientID),
		zap.Int64s("appointment_ids", ids),
		zap.String("status", string(status)),
	)
	s.publish(ctx, events.TypeBookingCommitted, req.ProviderID, ids, "")

	return appointments, nil
}

// ReserveAndCommit занимает секцию провайдера, проверяет кандидатов против
// актуального состояния и только затем вызывает commit. Контекст commit отменяется,
// если аренда секции истекла.
func (s *BookingService) ReserveAndCommit(
	ctx context.Context,
	providerID int64,
	candidates []interval.Interval,
	excludeID int64,
	commit func(ctx context.Context) error,
) ([]*ValidationResult, error) {
	var results []*ValidationResult

	err := s.inSection(ctx, providerID, func(ctx context.Context) error {
		var err error
		results, err = s.commitIfFree(ctx, providerID, candidates, excludeID, commit)
		return err
	})
	if err != nil {
		return results, err
	}

	return results, nil
}

// commitIfFree проверяет кандидатов и вызывает commit. Только внутри секции провайдера:
// секция не реентерабельна.
func (s *BookingService) commitIfFree(
	ctx context.Context,
	providerID int64,
	candidates []interval.Interval,
	excludeID int64,
	commit func(ctx context.Context) error,
) ([]*ValidationResult, error) {
	results, err := s.validator.ValidateSeries(ctx, providerID, candidates, excludeID)
	if err != nil {
		return nil, err
	}

	for _, r := range results {
		if !r.OK {
			return results, &BookingConflictError{ProviderID: providerID, Occurrences: results}
		}
	}

	return results, commit(ctx)
}

// inSection выполняет fn под арендой секции провайдера
func (s *BookingService) inSection(ctx context.Context, providerID int64, fn func(ctx context.Context) error) error {
	lease, err := s.locker.Acquire(ctx, providerID)
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return fmt.Errorf("%w: %w", ErrReservationTimeout, err)
		}
		return fmt.Errorf("acquire provider section: %w", err)
	}
	defer lease.Release()

	sectionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(lease.Context(), cancel)
	defer stop()

	err = fn(sectionCtx)
	if err != nil && lease.Expired() {
		s.logger.Warn("Reservation expired inside provider section",
			zap.Int64("provider_id", providerID),
			zap.String("token", lease.Token),
			zap.Error(err),
		)
		return fmt.Errorf("%w: provider %d section expired: %w", ErrReservationTimeout, providerID, err)
	}

	return err
}

// RescheduleAppointment переносит запись на newStart, сохраняя длительность
func (s *BookingService) RescheduleAppointment(ctx context.Context, id int64, newStart time.Time) (*model.Appointment, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	candidate := interval.Interval{Start: newStart, End: newStart.Add(appt.Duration())}

	_, err = s.ReserveAndCommit(ctx, appt.ProviderID, []interval.Interval{candidate}, id, func(ctx context.Context) error {
		current, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get appointment: %w", err)
		}
		if current == nil {
			return fmt.Errorf("%w: appointment %d", ErrNotFound, id)
		}
		if current.Status != model.AppointmentStatusPending && current.Status != model.AppointmentStatusConfirmed {
			return fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidTransition, current.Status)
		}
		return s.appointments.UpdateTime(ctx, id, candidate.Start, candidate.End, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment rescheduled",
		zap.Int64("appointment_id", id),
		zap.Int64("provider_id", appt.ProviderID),
		zap.Time("old_start", appt.StartTime),
		zap.Time("new_start", newStart),
	)
	s.publish(ctx, events.TypeAppointmentUpdated, appt.ProviderID, []int64{id}, "rescheduled")

	return s.GetAppointment(ctx, id)
}

// ConfirmAppointment подтверждает запись. Интервал занят с момента создания
// и уже прошёл проверку, поэтому повторно он не проверяется.
func (s *BookingService) ConfirmAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusConfirmed)
}

func (s *BookingService) CancelAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusCancelled)
}

func (s *BookingService) CompleteAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusCompleted)
}

func (s *BookingService) MarkNoShow(ctx context.Context, id int64) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusNoShow)
}

func (s *BookingService) transition(ctx context.Context, id int64, next model.AppointmentStatus) (*model.Appointment, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	var previous model.AppointmentStatus
	err = s.inSection(ctx, appt.ProviderID, func(ctx context.Context) error {
		current, err := s.appointments.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get appointment: %w", err)
		}
		if current == nil {
			return fmt.Errorf("%w: appointment %d", ErrNotFound, id)
		}
		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next)
		}
		previous = current.Status
		return s.appointments.UpdateStatus(ctx, id, next, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Appointment status changed",
		zap.Int64("appointment_id", id),
		zap.Int64("provider_id", appt.ProviderID),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)
	s.publish(ctx, events.TypeAppointmentUpdated, appt.ProviderID, []int64{id}, string(next))

	return s.GetAppointment(ctx, id)
}

// CancelSeries отменяет все ещё не завершённые вхождения серии
func (s *BookingService) CancelSeries(ctx context.Context, seriesID uuid.UUID) ([]*model.Appointment, error) {
	occurrences, err := s.appointments.GetBySeriesID(ctx, seriesID)
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	if len(occurrences) == 0 {
		return nil, fmt.Errorf("%w: series %s", ErrNotFound, seriesID)
	}
	providerID := occurrences[0].ProviderID

	var cancelled []*model.Appointment
	err = s.inSection(ctx, providerID, func(ctx context.Context) error {
		current, err := s.appointments.GetBySeriesID(ctx, seriesID)
		if err != nil {
			return fmt.Errorf("get series: %w", err)
		}

		now := s.now()
		for _, appt := range current {
			if !appt.Status.CanTransitionTo(model.AppointmentStatusCancelled) {
				continue
			}
			if err := s.appointments.UpdateStatus(ctx, appt.ID, model.AppointmentStatusCancelled, now); err != nil {
				return fmt.Errorf("cancel appointment %d: %w", appt.ID, err)
			}
			appt.Status = model.AppointmentStatusCancelled
			appt.ExternalSyncState = model.SyncStateUnsynced
			appt.UpdatedAt = now
			cancelled = append(cancelled, appt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := appointmentIDs(cancelled)
	s.logger.Info("Series cancelled",
		zap.String("series_id", seriesID.String()),
		zap.Int64("provider_id", providerID),
		zap.Int64s("appointment_ids", ids),
	)
	if len(ids) > 0 {
		s.publish(ctx, events.TypeAppointmentUpdated, providerID, ids, string(model.AppointmentStatusCancelled))
	}

	return cancelled, nil
}

// GetAppointment возвращает запись или ErrNotFound
func (s *BookingService) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt == nil {
		return nil, fmt.Errorf("%w: appointment %d", ErrNotFound, id)
	}
	return appt, nil
}

// ListClientAppointments возвращает записи клиента, начиная с from
func (s *BookingService) ListClientAppointments(ctx context.Context, clientID int64, from time.Time) ([]*model.Appointment, error) {
	return s.appointments.ListByClientID(ctx, clientID, from)
}

// ListProviderAppointments возвращает неотменённые записи провайдера в диапазоне
func (s *BookingService) ListProviderAppointments(ctx context.Context, providerID int64, from, to time.Time) ([]*model.Appointment, error) {
	return s.appointments.ListActiveInRange(ctx, providerID, from, to)
}

// publish уведомляет подписчиков; ошибка доставки не отменяет уже сохранённое изменение
func (s *BookingService) publish(ctx context.Context, eventType events.Type, providerID int64, ids []int64, message string) {
	if s.bus == nil {
		return
	}

	err := s.bus.Publish(ctx, &events.Event{
		Type:           eventType,
		ProviderID:     providerID,
		AppointmentIDs: ids,
		Message:        message,
		OccurredAt:     s.now(),
	})
	if err != nil {
		s.logger.Error("Failed to publish event",
			zap.String("type", string(eventType)),
			zap.Int64("provider_id", providerID),
			zap.Error(err),
		)
	}
}

func appointmentIDs(appointments []*model.Appointment) []int64 {
	ids := make([]int64, 0, len(appointments))
	for _, a := range appointments {
		ids = append(ids, a.ID)
	}
	return ids
}
