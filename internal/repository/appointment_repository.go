package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrOverlap срабатывает EXCLUDE-ограничение: активные записи провайдера пересеклись
var ErrOverlap = errors.New("appointment overlaps another active appointment")

const appointmentColumns = `
	id, provider_id, client_id, start_time, end_time, status,
	recurrence_frequency, recurrence_end_date, series_id,
	external_sync_state, external_event_id, synced_at, created_at, updated_at
`

type AppointmentRepository struct {
	*base.Repository
}

func NewAppointmentRepository(pool *pgxpool.Pool) *AppointmentRepository {
	return &AppointmentRepository{Repository: base.NewRepository(pool)}
}

// CreateBatch вставляет все вхождения в одной транзакции
func (r *AppointmentRepository) CreateBatch(ctx context.Context, appointments []*model.Appointment) error {
	query := `
		INSERT INTO appointments (
			provider_id, client_id, start_time, end_time, status,
			recurrence_frequency, recurrence_end_date, series_id,
			external_sync_state, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		for _, a := range appointments {
			var (
				frequency *model.Frequency
				endDate   *time.Time
			)
			if a.Recurrence != nil {
				frequency = &a.Recurrence.Frequency
				endDate = &a.Recurrence.EndDate
			}

			state := a.ExternalSyncState
			if state == "" {
				state = model.SyncStateUnsynced
			}

			err := tx.QueryRow(ctx, query,
				a.ProviderID,
				a.ClientID,
				a.StartTime,
				a.EndTime,
				a.Status,
				frequency,
				endDate,
				a.SeriesID,
				state,
				a.CreatedAt,
				a.UpdatedAt,
			).Scan(&a.ID)
			if err != nil {
				if base.IsExclusionViolation(err) {
					return fmt.Errorf("%w: %s", ErrOverlap, a.StartTime.Format(time.RFC3339))
				}
				return fmt.Errorf("insert appointment: %w", err)
			}
			a.ExternalSyncState = state
		}
		return nil
	})
}

// GetByID получает запись по ID
func (r *AppointmentRepository) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByExternalEventID получает запись, связанную с событием внешнего календаря
func (r *AppointmentRepository) GetByExternalEventID(ctx context.Context, providerID int64, eventID string) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE provider_id = $1 AND external_event_id = $2`
	return r.getOne(ctx, query, providerID, eventID)
}

// GetBySeriesID получает все вхождения серии
func (r *AppointmentRepository) GetBySeriesID(ctx context.Context, seriesID uuid.UUID) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE series_id = $1 ORDER BY start_time`
	return r.list(ctx, query, seriesID)
}

// ListActiveInRange получает неотменённые записи провайдера, пересекающие [from, to)
func (r *AppointmentRepository) ListActiveInRange(ctx context.Context, providerID int64, from, to time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE provider_id = $1 AND status <> 'cancelled' AND start_time < $3 AND end_time > $2
		ORDER BY start_time`
	return r.list(ctx, query, providerID, from, to)
}

// ListByClientID получает записи клиента, не закончившиеся к from
func (r *AppointmentRepository) ListByClientID(ctx context.Context, clientID int64, from time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE client_id = $1 AND end_time >= $2
		ORDER BY start_time`
	return r.list(ctx, query, clientID, from)
}

// ListBySyncState получает записи провайдера в указанном состоянии синхронизации
func (r *AppointmentRepository) ListBySyncState(ctx context.Context, providerID int64, state model.SyncState) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE provider_id = $1 AND external_sync_state = $2
		ORDER BY start_time`
	return r.list(ctx, query, providerID, state)
}

// UpdateStatus меняет статус; запись снова ждёт синхронизации
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id int64, status model.AppointmentStatus, at time.Time) error {
	query := `
		UPDATE appointments
		SET status = $2, updated_at = $3, external_sync_state = 'unsynced'
		WHERE id = $1
	`
	return r.execOne(ctx, "update appointment status", query, id, status, at)
}

// UpdateTime переносит запись; запись снова ждёт синхронизации
func (r *AppointmentRepository) UpdateTime(ctx context.Context, id int64, start, end, at time.Time) error {
	query := `
		UPDATE appointments
		SET start_time = $2, end_time = $3, updated_at = $4, external_sync_state = 'unsynced'
		WHERE id = $1
	`
	return r.execOne(ctx, "update appointment time", query, id, start, end, at)
}

// ApplyExternalTime применяет перенос из внешнего календаря; state unsynced оставляет
// неотправленные локальные изменения в очереди
func (r *AppointmentRepository) ApplyExternalTime(ctx context.Context, id int64, start, end time.Time, state model.SyncState, syncedAt time.Time) error {
	query := `
		UPDATE appointments
		SET start_time = $2, end_time = $3, external_sync_state = $4, synced_at = $5
		WHERE id = $1
	`
	return r.execOne(ctx, "apply external time", query, id, start, end, state, syncedAt)
}

// UpdateSyncState безусловно меняет состояние синхронизации
func (r *AppointmentRepository) UpdateSyncState(ctx context.Context, id int64, state model.SyncState, externalEventID *string, syncedAt *time.Time) error {
	query := `
		UPDATE appointments
		SET external_sync_state = $2, external_event_id = $3, synced_at = $4
		WHERE id = $1
	`
	return r.execOne(ctx, "update sync state", query, id, state, externalEventID, syncedAt)
}

// CompareAndSetSyncState меняет состояние, только если текущее равно expected
func (r *AppointmentRepository) CompareAndSetSyncState(ctx context.Context, id int64, expected, state model.SyncState, externalEventID *string, syncedAt *time.Time) (bool, error) {
	query := `
		UPDATE appointments
		SET external_sync_state = $3, external_event_id = $4, synced_at = $5
		WHERE id = $1 AND external_sync_state = $2
	`

	affected, err := r.ExecAffected(ctx, query, id, expected, state, externalEventID, syncedAt)
	if err != nil {
		return false, fmt.Errorf("compare and set sync state: %w", err)
	}

	return affected > 0, nil
}

func (r *AppointmentRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	affected, err := r.ExecAffected(ctx, query, args...)
	if err != nil {
		if base.IsExclusionViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrOverlap)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if affected == 0 {
		return fmt.Errorf("%s: appointment not found", op)
	}

	return nil
}

func (r *AppointmentRepository) getOne(ctx context.Context, query string, args ...interface{}) (*model.Appointment, error) {
	a, err := scanAppointment(r.QueryRow(ctx, query, args...))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*model.Appointment, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var appointments []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}

	return appointments, rows.Err()
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a         model.Appointment
		frequency *string
		endDate   *time.Time
	)

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ClientID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&frequency,
		&endDate,
		&a.SeriesID,
		&a.ExternalSyncState,
		&a.ExternalEventID,
		&a.SyncedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if frequency != nil && endDate != nil {
		a.Recurrence = &model.Recurrence{Frequency: model.Frequency(*frequency), EndDate: *endDate}
	}

	return &a, nil
}
