package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

type UserStore struct {
	mu    sync.RWMutex
	seq   int64
	users map[int64]*model.User
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]*model.User)}
}

func (s *UserStore) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.TelegramID == user.TelegramID {
			return fmt.Errorf("user with telegram id %d already exists", user.TelegramID)
		}
	}

	s.seq++
	user.ID = s.seq
	user.CreatedAt = time.Now()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *UserStore) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.TelegramID == telegramID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *UserStore) Update(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return fmt.Errorf("user %d not found", user.ID)
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}
