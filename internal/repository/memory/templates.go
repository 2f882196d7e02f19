// Package memory хранилища в памяти с той же семантикой, что и PostgreSQL-репозитории.
// Используются в режиме STORAGE=memory и в тестах.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

type TemplateStore struct {
	mu        sync.RWMutex
	templates map[int64]*model.AvailabilityTemplate
}

func NewTemplateStore() *TemplateStore {
	return &TemplateStore{templates: make(map[int64]*model.AvailabilityTemplate)}
}

func (s *TemplateStore) Get(ctx context.Context, providerID int64) (*model.AvailabilityTemplate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[providerID]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (s *TemplateStore) Save(ctx context.Context, template *model.AvailabilityTemplate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.templates[template.ProviderID] = template.Clone()
	return nil
}

func (s *TemplateStore) ListProviderIDs(ctx context.Context) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.templates))
	for id := range s.templates {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
