package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/base"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BlockedIntervalRepository struct {
	*base.Repository
}

func NewBlockedIntervalRepository(pool *pgxpool.Pool) *BlockedIntervalRepository {
	return &BlockedIntervalRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт закрытый интервал
func (r *BlockedIntervalRepository) Create(ctx context.Context, block *model.BlockedInterval) error {
	query := `
		INSERT INTO blocked_intervals (provider_id, start_time, end_time, reason, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.QueryRow(ctx, query,
		block.ProviderID,
		block.StartTime,
		block.EndTime,
		block.Reason,
		block.Notes,
	).Scan(&block.ID, &block.CreatedAt)

	if err != nil {
		return fmt.Errorf("create blocked interval: %w", err)
	}

	return nil
}

// GetByID получает закрытый интервал по ID
func (r *BlockedIntervalRepository) GetByID(ctx context.Context, id int64) (*model.BlockedInterval, error) {
	query := `
		SELECT id, provider_id, start_time, end_time, reason, notes, created_at
		FROM blocked_intervals
		WHERE id = $1
	`

	var b model.BlockedInterval
	err := r.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.ProviderID,
		&b.StartTime,
		&b.EndTime,
		&b.Reason,
		&b.Notes,
		&b.CreatedAt,
	)

	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get blocked interval: %w", err)
	}

	return &b, nil
}

// Delete удаляет закрытый интервал
func (r *BlockedIntervalRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.ExecAffected(ctx, `DELETE FROM blocked_intervals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete blocked interval: %w", err)
	}
	return nil
}

// ListInRange возвращает интервалы провайдера, пересекающие [from, to)
func (r *BlockedIntervalRepository) ListInRange(ctx context.Context, providerID int64, from, to time.Time) ([]*model.BlockedInterval, error) {
	query := `
		SELECT id, provider_id, start_time, end_time, reason, notes, created_at
		FROM blocked_intervals
		WHERE provider_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time
	`

	rows, err := r.Query(ctx, query, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list blocked intervals: %w", err)
	}
	defer rows.Close()

	var blocks []*model.BlockedInterval
	for rows.Next() {
		var b model.BlockedInterval
		err := rows.Scan(
			&b.ID,
			&b.ProviderID,
			&b.StartTime,
			&b.EndTime,
			&b.Reason,
			&b.Notes,
			&b.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan blocked interval: %w", err)
		}
		blocks = append(blocks, &b)
	}

	return blocks, rows.Err()
}
