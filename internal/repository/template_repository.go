package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TemplateRepository struct {
	*base.Repository
}

func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{Repository: base.NewRepository(pool)}
}

// Get получает шаблон провайдера
func (r *TemplateRepository) Get(ctx context.Context, providerID int64) (*model.AvailabilityTemplate, error) {
	query := `
		SELECT provider_id, weekly_schedule, buffer_minutes, max_daily_appointments,
		       advance_booking_days, min_notice_hours, timezone, updated_at
		FROM availability_templates
		WHERE provider_id = $1
	`

	var t model.AvailabilityTemplate
	err := r.QueryRow(ctx, query, providerID).Scan(
		&t.ProviderID,
		&t.WeeklySchedule,
		&t.BufferMinutes,
		&t.MaxDailyAppointments,
		&t.AdvanceBookingDays,
		&t.MinNoticeHours,
		&t.Timezone,
		&t.UpdatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get template: %w", err)
	}

	return &t, nil
}

// Save заменяет шаблон провайдера одной командой
func (r *TemplateRepository) Save(ctx context.Context, t *model.AvailabilityTemplate) error {
	query := `
		INSERT INTO availability_templates (
			provider_id, weekly_schedule, buffer_minutes, max_daily_appointments,
			advance_booking_days, min_notice_hours, timezone, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id) DO UPDATE SET
			weekly_schedule        = EXCLUDED.weekly_schedule,
			buffer_minutes         = EXCLUDED.buffer_minutes,
			max_daily_appointments = EXCLUDED.max_daily_appointments,
			advance_booking_days   = EXCLUDED.advance_booking_days,
			min_notice_hours       = EXCLUDED.min_notice_hours,
			timezone               = EXCLUDED.timezone,
			updated_at             = EXCLUDED.updated_at
	`

	_, err := r.Pool().Exec(ctx, query,
		t.ProviderID,
		t.WeeklySchedule,
		t.BufferMinutes,
		t.MaxDailyAppointments,
		t.AdvanceBookingDays,
		t.MinNoticeHours,
		t.Timezone,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save template: %w", err)
	}

	return nil
}

// ListProviderIDs возвращает провайдеров с сохранённым шаблоном
func (r *TemplateRepository) ListProviderIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.Query(ctx, `SELECT provider_id FROM availability_templates ORDER BY provider_id`)
	if err != nil {
		return nil, fmt.Errorf("list provider ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan provider id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
