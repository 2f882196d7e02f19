package service

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"go.uber.org/zap"
)

type UserService struct {
	users  UserStore
	logger *zap.Logger
}

func NewUserService(users UserStore, logger *zap.Logger) *UserService {
	return &UserService{
		users:  users,
		logger: logger,
	}
}

// RegisterUser регистрирует или обновляет пользователя
func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, username, firstName, lastName string) (*model.User, error) {
	existingUser, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	if existingUser != nil {
		existingUser.Username = username
		existingUser.FirstName = firstName
		existingUser.LastName = lastName

		if err := s.users.Update(ctx, existingUser); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}

		s.logger.Info("User updated",
			zap.Int64("telegram_id", telegramID),
			zap.String("username", username),
		)

		return existingUser, nil
	}

	user := &model.User{
		TelegramID: telegramID,
		Username:   username,
		FirstName:  firstName,
		LastName:   lastName,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("New user registered",
		zap.Int64("user_id", user.ID),
		zap.Int64("telegram_id", telegramID),
		zap.String("username", username),
	)

	return user, nil
}

// GetByTelegramID получает пользователя по Telegram ID
func (s *UserService) GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.users.GetByTelegramID(ctx, telegramID)
}

// GetByID получает пользователя по ID
func (s *UserService) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return s.users.GetByID(ctx, id)
}

// BecomeProvider делает пользователя провайдером
func (s *UserService) BecomeProvider(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.updateByTelegramID(ctx, telegramID, func(user *model.User) {
		user.IsProvider = true
	})
}

// SetAutoConfirm включает или выключает автоподтверждение новых записей
func (s *UserService) SetAutoConfirm(ctx context.Context, telegramID int64, enabled bool) (*model.User, error) {
	return s.updateByTelegramID(ctx, telegramID, func(user *model.User) {
		user.AutoConfirmBookings = enabled
	})
}

// SetCalendarID привязывает внешний календарь провайдера
func (s *UserService) SetCalendarID(ctx context.Context, telegramID int64, calendarID string) (*model.User, error) {
	return s.updateByTelegramID(ctx, telegramID, func(user *model.User) {
		user.CalendarID = &calendarID
	})
}

// CalendarID возвращает идентификатор внешнего календаря провайдера; по умолчанию "primary"
func (s *UserService) CalendarID(ctx context.Context, providerID int64) (string, error) {
	user, err := s.users.GetByID(ctx, providerID)
	if err != nil {
		return "", fmt.Errorf("get provider: %w", err)
	}
	if user == nil {
		return "", fmt.Errorf("%w: provider %d", ErrNotFound, providerID)
	}
	if user.CalendarID == nil || *user.CalendarID == "" {
		return "primary", nil
	}
	return *user.CalendarID, nil
}

func (s *UserService) updateByTelegramID(ctx context.Context, telegramID int64, apply func(*model.User)) (*model.User, error) {
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user == nil {
		return nil, fmt.Errorf("%w: user with telegram id %d", ErrNotFound, telegramID)
	}

	apply(user)
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.logger.Info("User settings updated",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username),
		zap.Bool("is_provider", user.IsProvider),
		zap.Bool("auto_confirm", user.AutoConfirmBookings),
	)

	return user, nil
}
