package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SyncRepository курсоры внешних календарей и журнал разрешённых расхождений
type SyncRepository struct {
	*base.Repository
}

func NewSyncRepository(pool *pgxpool.Pool) *SyncRepository {
	return &SyncRepository{Repository: base.NewRepository(pool)}
}

// GetCursor возвращает сохранённый курсор; пустая строка если его нет
func (r *SyncRepository) GetCursor(ctx context.Context, providerID int64) (string, error) {
	var cursor string
	err := r.QueryRow(ctx, `SELECT cursor FROM sync_cursors WHERE provider_id = $1`, providerID).Scan(&cursor)
	if err != nil {
		if base.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("get sync cursor: %w", err)
	}
	return cursor, nil
}

func (r *SyncRepository) SaveCursor(ctx context.Context, providerID int64, cursor string) error {
	query := `
		INSERT INTO sync_cursors (provider_id, cursor, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (provider_id) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = NOW()
	`

	if _, err := r.Pool().Exec(ctx, query, providerID, cursor); err != nil {
		return fmt.Errorf("save sync cursor: %w", err)
	}
	return nil
}

// RecordResolution сохраняет запись аудита
func (r *SyncRepository) RecordResolution(ctx context.Context, res *model.SyncResolution) error {
	query := `
		INSERT INTO sync_resolutions (appointment_id, provider_id, field, old_value, new_value, source, outcome, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := r.QueryRow(ctx, query,
		res.AppointmentID,
		res.ProviderID,
		res.Field,
		res.OldValue,
		res.NewValue,
		res.Source,
		res.Outcome,
		res.ResolvedAt,
	).Scan(&res.ID)
	if err != nil {
		return fmt.Errorf("record sync resolution: %w", err)
	}

	return nil
}

func (r *SyncRepository) ListResolutions(ctx context.Context, appointmentID int64) ([]*model.SyncResolution, error) {
	query := `
		SELECT id, appointment_id, provider_id, field, old_value, new_value, source, outcome, resolved_at
		FROM sync_resolutions
		WHERE appointment_id = $1
		ORDER BY resolved_at, id
	`

	rows, err := r.Query(ctx, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list sync resolutions: %w", err)
	}
	defer rows.Close()

	var resolutions []*model.SyncResolution
	for rows.Next() {
		var res model.SyncResolution
		err := rows.Scan(
			&res.ID,
			&res.AppointmentID,
			&res.ProviderID,
			&res.Field,
			&res.OldValue,
			&res.NewValue,
			&res.Source,
			&res.Outcome,
			&res.ResolvedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sync resolution: %w", err)
		}
		resolutions = append(resolutions, &res)
	}

	return resolutions, rows.Err()
}
