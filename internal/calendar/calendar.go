package calendar

import (
	"context"
	"time"
)

type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Event проекция записи во внешнем календаре
type Event struct {
	ID            string
	AppointmentID int64
	Summary       string
	Start         time.Time
	End           time.Time
	Status        EventStatus
	Updated       time.Time
}

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// Change изменение события во внешнем календаре
type Change struct {
	Kind       ChangeKind
	EventID    string
	Event      Event
	ModifiedAt time.Time
}

// Client контракт внешнего календаря, с которым сверяется локальное состояние
type Client interface {
	CreateEvent(ctx context.Context, providerID int64, event *Event) (string, error)
	UpdateEvent(ctx context.Context, providerID int64, eventID string, event *Event) error
	DeleteEvent(ctx context.Context, providerID int64, eventID string) error
	// ChangesSince возвращает изменения после cursor и новый курсор; пустой курсор - с начала
	ChangesSince(ctx context.Context, providerID int64, cursor string) ([]Change, string, error)
}
