package memory

import (
	"context"
	"sync"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

type SyncStore struct {
	mu          sync.RWMutex
	seq         int64
	cursors     map[int64]string
	resolutions []*model.SyncResolution
}

func NewSyncStore() *SyncStore {
	return &SyncStore{cursors: make(map[int64]string)}
}

func (s *SyncStore) GetCursor(ctx context.Context, providerID int64) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[providerID], nil
}

func (s *SyncStore) SaveCursor(ctx context.Context, providerID int64, cursor string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[providerID] = cursor
	return nil
}

func (s *SyncStore) RecordResolution(ctx context.Context, resolution *model.SyncResolution) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	resolution.ID = s.seq
	cp := *resolution
	s.resolutions = append(s.resolutions, &cp)
	return nil
}

func (s *SyncStore) ListResolutions(ctx context.Context, appointmentID int64) ([]*model.SyncResolution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.SyncResolution
	for _, r := range s.resolutions {
		if r.AppointmentID == appointmentID {
			cp := *r
			result = append(result, &cp)
		}
	}
	return result, nil
}
