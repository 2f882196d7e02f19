package events

import (
	"context"
	"time"
)

type Type string

const (
	TypeBookingCommitted   Type = "booking.committed"
	TypeAppointmentUpdated Type = "appointment.updated"
	TypeSyncConflict       Type = "sync.conflict"
)

// Event уведомление подписчиков об изменении состояния провайдера
type Event struct {
	Type           Type      `json:"type"`
	ProviderID     int64     `json:"provider_id"`
	AppointmentIDs []int64   `json:"appointment_ids"`
	Message        string    `json:"message,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Bus контракт публикации/подписки между координатором и наблюдателями
type Bus interface {
	Publish(ctx context.Context, event *Event) error
	// Subscribe возвращает канал событий; канал закрывается при отмене ctx
	Subscribe(ctx context.Context) (<-chan *Event, error)
	Close() error
}

const subscriberBuffer = 100
