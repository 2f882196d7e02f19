package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/calendar"
	"github.com/Freeeeeet/booking_engine/internal/events"
	"github.com/Freeeeeet/booking_engine/internal/interval"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	syncFieldTime   = "time"
	syncFieldStatus = "status"
)

// SyncReport итог одной сверки провайдера
type SyncReport struct {
	ProviderID  int64                   `json:"provider_id"`
	Created     int                     `json:"created"`    // события созданы во внешнем календаре
	Updated     int                     `json:"updated"`    // события обновлены снаружи или записи обновлены изнутри
	Deleted     int                     `json:"deleted"`    // события удалены во внешнем календаре
	Conflicted  int                     `json:"conflicted"` // входящие изменения, переведённые в sync_error
	Failed      int                     `json:"failed"`     // ошибки отправки во внешний календарь
	Resolutions []*model.SyncResolution `json:"resolutions,omitempty"`
	Conflicts   []*SyncConflictError    `json:"-"`
}

// SyncService двусторонняя сверка записей с внешним календарём
type SyncService struct {
	appointments AppointmentStore
	syncStore    SyncStore
	calendar     calendar.Client
	booking      *BookingService
	availability *AvailabilityService
	bus          events.Bus
	logger       *zap.Logger
	now          func() time.Time
	concurrency  int

	running sync.Map // providerID -> *sync.Mutex
}

func NewSyncService(
	appointments AppointmentStore,
	syncStore SyncStore,
	calendarClient calendar.Client,
	booking *BookingService,
	availability *AvailabilityService,
	bus events.Bus,
	concurrency int,
	logger *zap.Logger,
) *SyncService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncService{
		appointments: appointments,
		syncStore:    syncStore,
		calendar:     calendarClient,
		booking:      booking,
		availability: availability,
		bus:          bus,
		logger:       logger,
		now:          time.Now,
		concurrency:  concurrency,
	}
}

// Reconcile сначала применяет внешние изменения, затем отправляет локальные
func (s *SyncService) Reconcile(ctx context.Context, providerID int64) (*SyncReport, error) {
	mu := s.providerMutex(providerID)
	mu.Lock()
	defer mu.Unlock()

	report := &SyncReport{ProviderID: providerID}

	if err := s.pull(ctx, providerID, report); err != nil {
		return report, fmt.Errorf("pull external changes: %w", err)
	}

	if err := s.push(ctx, providerID, report); err != nil {
		return report, fmt.Errorf("push local changes: %w", err)
	}

	s.logger.Info("Provider reconciled",
		zap.Int64("provider_id", providerID),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("deleted", report.Deleted),
		zap.Int("conflicted", report.Conflicted),
		zap.Int("failed", report.Failed),
	)

	return report, nil
}

// PushPending отправляет только локальные изменения, без чтения внешнего календаря
func (s *SyncService) PushPending(ctx context.Context, providerID int64) (*SyncReport, error) {
	mu := s.providerMutex(providerID)
	mu.Lock()
	defer mu.Unlock()

	report := &SyncReport{ProviderID: providerID}
	if err := s.push(ctx, providerID, report); err != nil {
		return report, fmt.Errorf("push local changes: %w", err)
	}
	return report, nil
}

// ReconcileAll сверяет всех провайдеров с шаблоном, не более concurrency одновременно.
// Ошибка одного провайдера не останавливает остальных.
func (s *SyncService) ReconcileAll(ctx context.Context) ([]*SyncReport, error) {
	providerIDs, err := s.availability.ListProviderIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}

	var (
		mu      sync.Mutex
		reports []*SyncReport
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, providerID := range providerIDs {
		g.Go(func() error {
			report, err := s.Reconcile(gctx, providerID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.logger.Error("Failed to reconcile provider",
					zap.Int64("provider_id", providerID),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("provider %d: %w", providerID, err))
				return nil
			}
			reports = append(reports, report)
			return nil
		})
	}

	_ = g.Wait()
	return reports, errors.Join(errs...)
}

// RetrySync ручной повтор для записи в sync_error: локальное состояние отправляется
// во внешний календарь поверх внешнего
func (s *SyncService) RetrySync(ctx context.Context, appointmentID int64) (*SyncReport, error) {
	appt, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if appt == nil {
		return nil, fmt.Errorf("%w: appointment %d", ErrNotFound, appointmentID)
	}

	mu := s.providerMutex(appt.ProviderID)
	mu.Lock()
	defer mu.Unlock()

	ok, err := s.appointments.CompareAndSetSyncState(ctx, appointmentID,
		model.SyncStateSyncError, model.SyncStateSyncing, appt.ExternalEventID, appt.SyncedAt)
	if err != nil {
		return nil, fmt.Errorf("enter syncing: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: appointment %d is %s, not %s",
			ErrInvalidTransition, appointmentID, appt.ExternalSyncState, model.SyncStateSyncError)
	}

	s.logger.Info("Manual sync retry",
		zap.Int64("appointment_id", appointmentID),
		zap.Int64("provider_id", appt.ProviderID),
	)

	report := &SyncReport{ProviderID: appt.ProviderID}
	if err := s.pushOne(ctx, appt, report); err != nil {
		return report, err
	}
	return report, nil
}

// ListResolutions журнал разрешённых расхождений по записи
func (s *SyncService) ListResolutions(ctx context.Context, appointmentID int64) ([]*model.SyncResolution, error) {
	return s.syncStore.ListResolutions(ctx, appointmentID)
}

// Listen отправляет локальные изменения сразу после публикации события о них.
// Возвращается, когда ctx отменён или подписка закрыта.
func (s *SyncService) Listen(ctx context.Context) error {
	ch, err := s.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for event := range ch {
		if event.Type != events.TypeBookingCommitted && event.Type != events.TypeAppointmentUpdated {
			continue
		}
		if _, err := s.PushPending(ctx, event.ProviderID); err != nil {
			s.logger.Error("Failed to push after event",
				zap.String("type", string(event.Type)),
				zap.Int64("provider_id", event.ProviderID),
				zap.Error(err),
			)
		}
	}

	return ctx.Err()
}

func (s *SyncService) providerMutex(providerID int64) *sync.Mutex {
	mu, _ := s.running.LoadOrStore(providerID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// pull применяет изменения внешнего календаря. Курсор сохраняется только после
// обработки всех изменений, поэтому при ошибке они будут прочитаны снова.
func (s *SyncService) pull(ctx context.Context, providerID int64, report *SyncReport) error {
	cursor, err := s.syncStore.GetCursor(ctx, providerID)
	if err != nil {
		return fmt.Errorf("get cursor: %w", err)
	}

	changes, next, err := s.calendar.ChangesSince(ctx, providerID, cursor)
	if err != nil {
		return fmt.Errorf("list changes: %w", err)
	}

	for _, change := range changes {
		if err := s.applyInbound(ctx, providerID, change, report); err != nil {
			return fmt.Errorf("apply change for event %s: %w", change.EventID, err)
		}
	}

	if next != cursor {
		if err := s.syncStore.SaveCursor(ctx, providerID, next); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
	}

	return nil
}

// applyInbound принимает решение по внешнему изменению внутри секции провайдера,
// по заново прочитанной записи: локальные изменения проходят через ту же секцию.
func (s *SyncService) applyInbound(ctx context.Context, providerID int64, change calendar.Change, report *SyncReport) error {
	linked, err := s.appointments.GetByExternalEventID(ctx, providerID, change.EventID)
	if err != nil {
		return fmt.Errorf("get linked appointment: %w", err)
	}
	if linked == nil {
		s.logger.Debug("Ignoring unlinked external event",
			zap.Int64("provider_id", providerID),
			zap.String("event_id", change.EventID),
		)
		return nil
	}

	return s.booking.inSection(ctx, providerID, func(ctx context.Context) error {
		appt, err := s.appointments.GetByID(ctx, linked.ID)
		if err != nil {
			return fmt.Errorf("get appointment: %w", err)
		}
		if appt == nil || appt.ExternalEventID == nil || *appt.ExternalEventID != change.EventID {
			return nil
		}

		// Изменение не новее нашей последней синхронизации: это отражение нашей же отправки.
		// Без метки времени (удалённые события Google) изменение не считается отражением.
		if appt.SyncedAt != nil && !change.ModifiedAt.IsZero() && !change.ModifiedAt.After(*appt.SyncedAt) {
			return nil
		}

		if change.Kind == calendar.ChangeDeleted || change.Event.Status == calendar.EventStatusCancelled {
			return s.applyInboundRemoval(ctx, appt, change, report)
		}

		return s.applyInboundTime(ctx, appt, change, report)
	})
}

// applyInboundRemoval: статус и отмена всегда остаются за локальной стороной.
// Событие будет восстановлено при следующей отправке.
func (s *SyncService) applyInboundRemoval(ctx context.Context, appt *model.Appointment, change calendar.Change, report *SyncReport) error {
	if !appt.Status.IsActive() {
		return nil
	}

	err := s.resolve(ctx, appt, syncFieldStatus, string(appt.Status), string(model.AppointmentStatusCancelled),
		model.SyncOutcomeKeptLocal, report)
	if err != nil {
		return err
	}

	externalID := appt.ExternalEventID
	if change.Kind == calendar.ChangeDeleted {
		externalID = nil
	}

	if err := s.appointments.UpdateSyncState(ctx, appt.ID, model.SyncStateUnsynced, externalID, appt.SyncedAt); err != nil {
		return fmt.Errorf("mark unsynced: %w", err)
	}

	s.logger.Info("External cancellation overridden by local status",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("provider_id", appt.ProviderID),
		zap.String("event_id", change.EventID),
		zap.String("status", string(appt.Status)),
	)

	return nil
}

// applyInboundTime переносит запись по внешнему изменению. Вызывается внутри секции.
// Конфликтующий перенос не применяется: запись переходит в sync_error.
func (s *SyncService) applyInboundTime(ctx context.Context, appt *model.Appointment, change calendar.Change, report *SyncReport) error {
	ev := change.Event
	if ev.Start.Equal(appt.StartTime) && ev.End.Equal(appt.EndTime) {
		return nil
	}
	if !appt.Status.IsActive() {
		return nil
	}

	oldValue := formatRange(appt.StartTime, appt.EndTime)
	newValue := formatRange(ev.Start, ev.End)

	// Обе стороны изменились: побеждает более позднее изменение
	if appt.ChangedSinceSync() && appt.UpdatedAt.After(change.ModifiedAt) {
		return s.resolve(ctx, appt, syncFieldTime, oldValue, newValue, model.SyncOutcomeKeptLocal, report)
	}

	// Неотправленные локальные изменения (например, статус) остаются в очереди на отправку
	state := model.SyncStateSynced
	if appt.ExternalSyncState != model.SyncStateSynced || appt.ChangedSinceSync() {
		state = model.SyncStateUnsynced
	}

	candidate, err := interval.New(ev.Start, ev.End)
	if err == nil {
		_, err = s.booking.commitIfFree(ctx, appt.ProviderID, []interval.Interval{candidate}, appt.ID, func(ctx context.Context) error {
			return s.appointments.ApplyExternalTime(ctx, appt.ID, candidate.Start, candidate.End, state, s.now())
		})
	}

	switch {
	case err == nil:
		report.Updated++
		s.logger.Info("External time change applied",
			zap.Int64("appointment_id", appt.ID),
			zap.Int64("provider_id", appt.ProviderID),
			zap.String("old", oldValue),
			zap.String("new", newValue),
			zap.String("sync_state", string(state)),
		)
		return s.resolve(ctx, appt, syncFieldTime, oldValue, newValue, model.SyncOutcomeAppliedExternal, report)

	case errors.Is(err, ErrBookingConflict) || errors.Is(err, ErrInvalidInterval):
		return s.rejectInbound(ctx, appt, oldValue, newValue, err, report)

	default:
		return err
	}
}

func (s *SyncService) rejectInbound(ctx context.Context, appt *model.Appointment, oldValue, newValue string, cause error, report *SyncReport) error {
	if err := s.appointments.UpdateSyncState(ctx, appt.ID, model.SyncStateSyncError, appt.ExternalEventID, appt.SyncedAt); err != nil {
		return fmt.Errorf("mark sync error: %w", err)
	}

	if err := s.resolve(ctx, appt, syncFieldTime, oldValue, newValue, model.SyncOutcomeRejected, report); err != nil {
		return err
	}

	conflict := &SyncConflictError{
		AppointmentID: appt.ID,
		Field:         syncFieldTime,
		OldValue:      oldValue,
		NewValue:      newValue,
		Source:        model.SyncSourceExternal,
		Cause:         cause,
	}
	report.Conflicted++
	report.Conflicts = append(report.Conflicts, conflict)

	s.logger.Warn("External time change rejected",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("provider_id", appt.ProviderID),
		zap.String("old", oldValue),
		zap.String("new", newValue),
		zap.Error(cause),
	)

	if s.bus != nil {
		err := s.bus.Publish(ctx, &events.Event{
			Type:           events.TypeSyncConflict,
			ProviderID:     appt.ProviderID,
			AppointmentIDs: []int64{appt.ID},
			Message:        conflict.Error(),
			OccurredAt:     s.now(),
		})
		if err != nil {
			s.logger.Error("Failed to publish sync conflict", zap.Int64("appointment_id", appt.ID), zap.Error(err))
		}
	}

	return nil
}

func (s *SyncService) resolve(ctx context.Context, appt *model.Appointment, field, oldValue, newValue string, outcome model.SyncOutcome, report *SyncReport) error {
	source := model.SyncSourceLocal
	if outcome == model.SyncOutcomeAppliedExternal {
		source = model.SyncSourceExternal
	}

	resolution := &model.SyncResolution{
		AppointmentID: appt.ID,
		ProviderID:    appt.ProviderID,
		Field:         field,
		OldValue:      oldValue,
		NewValue:      newValue,
		Source:        source,
		Outcome:       outcome,
		ResolvedAt:    s.now(),
	}

	if err := s.syncStore.RecordResolution(ctx, resolution); err != nil {
		return fmt.Errorf("record resolution: %w", err)
	}

	report.Resolutions = append(report.Resolutions, resolution)
	return nil
}

// push отправляет все unsynced записи провайдера
func (s *SyncService) push(ctx context.Context, providerID int64, report *SyncReport) error {
	pending, err := s.appointments.ListBySyncState(ctx, providerID, model.SyncStateUnsynced)
	if err != nil {
		return fmt.Errorf("list unsynced: %w", err)
	}

	for _, appt := range pending {
		ok, err := s.appointments.CompareAndSetSyncState(ctx, appt.ID,
			model.SyncStateUnsynced, model.SyncStateSyncing, appt.ExternalEventID, appt.SyncedAt)
		if err != nil {
			return fmt.Errorf("enter syncing: %w", err)
		}
		if !ok {
			continue
		}

		if err := s.pushOne(ctx, appt, report); err != nil {
			return err
		}
	}

	return nil
}

// pushOne отправляет запись, уже переведённую в syncing. Ошибка внешнего календаря
// переводит запись в sync_error и не прерывает сверку.
func (s *SyncService) pushOne(ctx context.Context, appt *model.Appointment, report *SyncReport) error {
	event := &calendar.Event{
		AppointmentID: appt.ID,
		Summary:       fmt.Sprintf("Appointment #%d (%s)", appt.ID, appt.Status),
		Start:         appt.StartTime,
		End:           appt.EndTime,
		Status:        calendar.EventStatusConfirmed,
	}

	externalID := appt.ExternalEventID
	var (
		err    error
		action string
	)

	switch {
	case appt.Status == model.AppointmentStatusCancelled:
		action = "delete"
		if externalID != nil {
			if err = s.calendar.DeleteEvent(ctx, appt.ProviderID, *externalID); err == nil {
				report.Deleted++
			}
		}
	case externalID == nil:
		action = "create"
		var id string
		if id, err = s.calendar.CreateEvent(ctx, appt.ProviderID, event); err == nil {
			externalID = &id
			report.Created++
		}
	default:
		action = "update"
		if err = s.calendar.UpdateEvent(ctx, appt.ProviderID, *externalID, event); err == nil {
			report.Updated++
		}
	}

	if err != nil {
		report.Failed++
		s.logger.Error("Failed to push appointment",
			zap.Int64("appointment_id", appt.ID),
			zap.Int64("provider_id", appt.ProviderID),
			zap.String("action", action),
			zap.Error(err),
		)
		if _, casErr := s.appointments.CompareAndSetSyncState(ctx, appt.ID,
			model.SyncStateSyncing, model.SyncStateSyncError, externalID, appt.SyncedAt); casErr != nil {
			return fmt.Errorf("mark sync error: %w", casErr)
		}
		return nil
	}

	syncedAt := s.now()
	ok, err := s.appointments.CompareAndSetSyncState(ctx, appt.ID,
		model.SyncStateSyncing, model.SyncStateSynced, externalID, &syncedAt)
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	if !ok {
		// Запись изменилась во время отправки и снова ждёт синхронизации
		if externalID != appt.ExternalEventID {
			if err := s.linkEvent(ctx, appt.ID, externalID); err != nil {
				return err
			}
		}
		return nil
	}

	s.logger.Debug("Appointment pushed",
		zap.Int64("appointment_id", appt.ID),
		zap.Int64("provider_id", appt.ProviderID),
		zap.String("action", action),
	)

	return nil
}

// linkEvent сохраняет идентификатор созданного события, не меняя состояние синхронизации
func (s *SyncService) linkEvent(ctx context.Context, id int64, externalID *string) error {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get appointment: %w", err)
	}
	if current == nil {
		return nil
	}
	if err := s.appointments.UpdateSyncState(ctx, id, current.ExternalSyncState, externalID, current.SyncedAt); err != nil {
		return fmt.Errorf("link external event: %w", err)
	}
	return nil
}

func formatRange(start, end time.Time) string {
	return start.UTC().Format(time.RFC3339) + "/" + end.UTC().Format(time.RFC3339)
}
