package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
)

// Контракты хранилищ. Реализации: repository (PostgreSQL) и repository/memory.
// Поиск по ключу возвращает nil, nil если запись не найдена.

type TemplateStore interface {
	Get(ctx context.Context, providerID int64) (*model.AvailabilityTemplate, error)
	// Save атомарно заменяет шаблон провайдера целиком
	Save(ctx context.Context, template *model.AvailabilityTemplate) error
	ListProviderIDs(ctx context.Context) ([]int64, error)
}

type BlockedIntervalStore interface {
	Create(ctx context.Context, block *model.BlockedInterval) error
	GetByID(ctx context.Context, id int64) (*model.BlockedInterval, error)
	Delete(ctx context.Context, id int64) error
	// ListInRange возвращает интервалы, пересекающие [from, to)
	ListInRange(ctx context.Context, providerID int64, from, to time.Time) ([]*model.BlockedInterval, error)
}

type AppointmentStore interface {
	// CreateBatch сохраняет все записи атомарно: либо все, либо ни одной
	CreateBatch(ctx context.Context, appointments []*model.Appointment) error
	GetByID(ctx context.Context, id int64) (*model.Appointment, error)
	GetByExternalEventID(ctx context.Context, providerID int64, eventID string) (*model.Appointment, error)
	GetBySeriesID(ctx context.Context, seriesID uuid.UUID) ([]*model.Appointment, error)
	// ListActiveInRange возвращает неотменённые записи, пересекающие [from, to)
	ListActiveInRange(ctx context.Context, providerID int64, from, to time.Time) ([]*model.Appointment, error)
	ListByClientID(ctx context.Context, clientID int64, from time.Time) ([]*model.Appointment, error)
	ListBySyncState(ctx context.Context, providerID int64, state model.SyncState) ([]*model.Appointment, error)
	// UpdateStatus и UpdateTime - локальные изменения: updated_at = at, состояние синхронизации unsynced
	UpdateStatus(ctx context.Context, id int64, status model.AppointmentStatus, at time.Time) error
	UpdateTime(ctx context.Context, id int64, start, end, at time.Time) error
	// ApplyExternalTime применяет перенос из внешнего календаря: synced_at = syncedAt,
	// updated_at не меняется, состояние синхронизации state
	ApplyExternalTime(ctx context.Context, id int64, start, end time.Time, state model.SyncState, syncedAt time.Time) error
	UpdateSyncState(ctx context.Context, id int64, state model.SyncState, externalEventID *string, syncedAt *time.Time) error
	// CompareAndSetSyncState меняет состояние только если текущее равно expected
	CompareAndSetSyncState(ctx context.Context, id int64, expected, state model.SyncState, externalEventID *string, syncedAt *time.Time) (bool, error)
}

type SyncStore interface {
	GetCursor(ctx context.Context, providerID int64) (string, error)
	SaveCursor(ctx context.Context, providerID int64, cursor string) error
	RecordResolution(ctx context.Context, resolution *model.SyncResolution) error
	ListResolutions(ctx context.Context, appointmentID int64) ([]*model.SyncResolution, error)
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	GetByID(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}
