package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

type BlockedIntervalStore struct {
	mu     sync.RWMutex
	seq    int64
	blocks map[int64]*model.BlockedInterval
	now    func() time.Time
}

func NewBlockedIntervalStore() *BlockedIntervalStore {
	return &BlockedIntervalStore{
		blocks: make(map[int64]*model.BlockedInterval),
		now:    time.Now,
	}
}

func (s *BlockedIntervalStore) Create(ctx context.Context, block *model.BlockedInterval) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	block.ID = s.seq
	block.CreatedAt = s.now()

	stored := *block
	s.blocks[block.ID] = &stored
	return nil
}

func (s *BlockedIntervalStore) GetByID(ctx context.Context, id int64) (*model.BlockedInterval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blocks[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *BlockedIntervalStore) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks, id)
	return nil
}

func (s *BlockedIntervalStore) ListInRange(ctx context.Context, providerID int64, from, to time.Time) ([]*model.BlockedInterval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.BlockedInterval
	for _, b := range s.blocks {
		if b.ProviderID != providerID {
			continue
		}
		if b.StartTime.Before(to) && from.Before(b.EndTime) {
			cp := *b
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}
