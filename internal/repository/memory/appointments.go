package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
)

type AppointmentStore struct {
	mu           sync.RWMutex
	seq          int64
	appointments map[int64]*model.Appointment
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{appointments: make(map[int64]*model.Appointment)}
}

// CreateBatch присваивает ID и сохраняет все записи одной операцией
func (s *AppointmentStore) CreateBatch(ctx context.Context, appointments []*model.Appointment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Аренда секции могла истечь, пока ждали мьютекс
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, a := range appointments {
		s.seq++
		a.ID = s.seq
		if a.ExternalSyncState == "" {
			a.ExternalSyncState = model.SyncStateUnsynced
		}
		s.appointments[a.ID] = clone(a)
	}
	return nil
}

func (s *AppointmentStore) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.appointments[id]
	if !ok {
		return nil, nil
	}
	return clone(a), nil
}

func (s *AppointmentStore) GetByExternalEventID(ctx context.Context, providerID int64, eventID string) (*model.Appointment, error) {
	found, err := s.filter(ctx, func(a *model.Appointment) bool {
		return a.ProviderID == providerID && a.ExternalEventID != nil && *a.ExternalEventID == eventID
	})
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

func (s *AppointmentStore) GetBySeriesID(ctx context.Context, seriesID uuid.UUID) ([]*model.Appointment, error) {
	return s.filter(ctx, func(a *model.Appointment) bool {
		return a.SeriesID != nil && *a.SeriesID == seriesID
	})
}

func (s *AppointmentStore) ListActiveInRange(ctx context.Context, providerID int64, from, to time.Time) ([]*model.Appointment, error) {
	return s.filter(ctx, func(a *model.Appointment) bool {
		return a.ProviderID == providerID && a.Status.IsActive() &&
			a.StartTime.Before(to) && from.Before(a.EndTime)
	})
}

func (s *AppointmentStore) ListByClientID(ctx context.Context, clientID int64, from time.Time) ([]*model.Appointment, error) {
	return s.filter(ctx, func(a *model.Appointment) bool {
		return a.ClientID == clientID && !a.EndTime.Before(from)
	})
}

func (s *AppointmentStore) ListBySyncState(ctx context.Context, providerID int64, state model.SyncState) ([]*model.Appointment, error) {
	return s.filter(ctx, func(a *model.Appointment) bool {
		return a.ProviderID == providerID && a.ExternalSyncState == state
	})
}

func (s *AppointmentStore) UpdateStatus(ctx context.Context, id int64, status model.AppointmentStatus, at time.Time) error {
	return s.update(ctx, id, func(a *model.Appointment) {
		a.Status = status
		a.UpdatedAt = at
		a.ExternalSyncState = model.SyncStateUnsynced
	})
}

func (s *AppointmentStore) UpdateTime(ctx context.Context, id int64, start, end, at time.Time) error {
	return s.update(ctx, id, func(a *model.Appointment) {
		a.StartTime = start
		a.EndTime = end
		a.UpdatedAt = at
		a.ExternalSyncState = model.SyncStateUnsynced
	})
}

func (s *AppointmentStore) ApplyExternalTime(ctx context.Context, id int64, start, end time.Time, state model.SyncState, syncedAt time.Time) error {
	return s.update(ctx, id, func(a *model.Appointment) {
		a.StartTime = start
		a.EndTime = end
		a.ExternalSyncState = state
		a.SyncedAt = &syncedAt
	})
}

func (s *AppointmentStore) UpdateSyncState(ctx context.Context, id int64, state model.SyncState, externalEventID *string, syncedAt *time.Time) error {
	return s.update(ctx, id, func(a *model.Appointment) {
		a.ExternalSyncState = state
		a.ExternalEventID = copyPtr(externalEventID)
		a.SyncedAt = copyPtr(syncedAt)
	})
}

func (s *AppointmentStore) CompareAndSetSyncState(ctx context.Context, id int64, expected, state model.SyncState, externalEventID *string, syncedAt *time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return false, err
	}

	a, ok := s.appointments[id]
	if !ok {
		return false, fmt.Errorf("appointment %d not found", id)
	}
	if a.ExternalSyncState != expected {
		return false, nil
	}

	a.ExternalSyncState = state
	a.ExternalEventID = copyPtr(externalEventID)
	a.SyncedAt = copyPtr(syncedAt)
	return true, nil
}

func (s *AppointmentStore) update(ctx context.Context, id int64, apply func(*model.Appointment)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	a, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("appointment %d not found", id)
	}
	apply(a)
	return nil
}

func (s *AppointmentStore) filter(ctx context.Context, match func(*model.Appointment) bool) ([]*model.Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Appointment
	for _, a := range s.appointments {
		if match(a) {
			result = append(result, clone(a))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

func clone(a *model.Appointment) *model.Appointment {
	cp := *a
	cp.ExternalEventID = copyPtr(a.ExternalEventID)
	cp.SyncedAt = copyPtr(a.SyncedAt)
	cp.SeriesID = copyPtr(a.SeriesID)
	if a.Recurrence != nil {
		r := *a.Recurrence
		cp.Recurrence = &r
	}
	return &cp
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
