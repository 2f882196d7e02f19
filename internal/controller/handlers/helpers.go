package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/controller/formatting"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

// requireUser проверяет что пользователь существует
// Возвращает user и true если OK, nil и false если нет
func (h *Handlers) requireUser(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, bool) {
	if update.Message == nil || update.Message.From == nil {
		return nil, false
	}

	telegramID := update.Message.From.ID
	user, err := h.userService.GetByTelegramID(ctx, telegramID)

	if err != nil {
		h.logger.Error("Failed to get user", zap.Int64("telegram_id", telegramID), zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Произошла ошибка. Попробуйте позже.")
		return nil, false
	}

	if user == nil {
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Пользователь не найден. Используйте /start для регистрации.")
		return nil, false
	}

	return user, true
}

// requireProvider проверяет что пользователь является провайдером
func (h *Handlers) requireProvider(ctx context.Context, b *bot.Bot, update *models.Update) (*model.User, bool) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return nil, false
	}

	if !user.IsProvider {
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Эта команда доступна только провайдерам.\n\nСтать провайдером: /becomeprovider")
		return nil, false
	}

	return user, true
}

// providerLocation часовой пояс шаблона провайдера; UTC если шаблон недоступен
func (h *Handlers) providerLocation(ctx context.Context, providerID int64) *time.Location {
	template, err := h.availabilityService.GetTemplate(ctx, providerID)
	if err != nil {
		h.logger.Warn("Failed to load provider template", zap.Int64("provider_id", providerID), zap.Error(err))
		return time.UTC
	}

	loc, err := template.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

// ownAppointment загружает запись и проверяет что пользователь её клиент или провайдер
func (h *Handlers) ownAppointment(ctx context.Context, user *model.User, id int64, providerOnly bool) (*model.Appointment, error) {
	appt, err := h.bookingService.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	if appt.ProviderID == user.ID || (!providerOnly && appt.ClientID == user.ID) {
		return appt, nil
	}
	return nil, fmt.Errorf("%w: appointment %d", service.ErrNotFound, id)
}

// describeError переводит ошибку движка в текст для пользователя
func describeError(err error, loc *time.Location) string {
	var (
		conflict *service.BookingConflictError
		template *service.TemplateError
		usageErr *usageError
	)

	switch {
	case errors.As(err, &usageErr):
		return "❌ " + usageErr.Error()
	case errors.As(err, &conflict):
		failed := conflict.Failed()
		header := "❌ Время недоступно:"
		if len(conflict.Occurrences) > 1 {
			header = fmt.Sprintf("❌ Серия не создана, недоступно %d из %d:", len(failed), len(conflict.Occurrences))
		}
		return header + "\n" + formatting.FormatRejections(failed, loc)
	case errors.As(err, &template):
		lines := make([]string, 0, len(template.Violations))
		for _, v := range template.Violations {
			lines = append(lines, "• "+v.Field+": "+v.Message)
		}
		return "❌ Некорректное расписание:\n" + strings.Join(lines, "\n")
	case errors.Is(err, service.ErrReservationTimeout):
		return "⏳ Провайдер сейчас занят другим запросом. Попробуйте ещё раз."
	case errors.Is(err, service.ErrRecurrenceTooLong):
		return "❌ Слишком длинная серия. Сократите период повторения."
	case errors.Is(err, service.ErrInvalidRecurrence):
		return "❌ Дата окончания серии должна быть позже первой записи."
	case errors.Is(err, service.ErrInvalidInterval):
		return "❌ Конец интервала должен быть позже начала."
	case errors.Is(err, service.ErrInvalidTransition):
		return "❌ Для записи в текущем статусе это действие недоступно."
	case errors.Is(err, service.ErrNotFound):
		return "❌ Не найдено."
	}
	return "❌ Произошла ошибка. Попробуйте позже."
}

// replyError отвечает пользователю описанием ошибки; неожиданные ошибки логируются
func (h *Handlers) replyError(ctx context.Context, b *bot.Bot, update *models.Update, op string, err error, loc *time.Location) {
	text := describeError(err, loc)
	if strings.HasPrefix(text, "❌ Произошла ошибка") {
		h.logger.Error("Command failed", zap.String("op", op), zap.Error(err))
	} else {
		h.logger.Info("Command rejected", zap.String("op", op), zap.Error(err))
	}
	h.sendError(ctx, b, update.Message.Chat.ID, text)
}

// sendError отправляет сообщение об ошибке и логирует если не удалось
func (h *Handlers) sendError(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send error message",
			zap.Int64("chat_id", chatID),
			zap.String("text", text),
			zap.Error(err),
		)
	}
}

// sendMessage отправляет сообщение и логирует если не удалось
func (h *Handlers) sendMessage(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err),
		)
	}
}
