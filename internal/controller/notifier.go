package controller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/controller/formatting"
	"github.com/Freeeeeet/booking_engine/internal/events"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type userLookup interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

type appointmentLookup interface {
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
}

type templateLookup interface {
	GetTemplate(ctx context.Context, providerID int64) (*model.AvailabilityTemplate, error)
}

// notification одно сообщение пользователю
type notification struct {
	ChatID int64
	Text   string
}

// Notifier подписчик шины событий: сообщает провайдеру и клиенту об изменениях их записей
type Notifier struct {
	bus          events.Bus
	sender       messageSender
	users        userLookup
	appointments appointmentLookup
	templates    templateLookup
	logger       *zap.Logger
}

func NewNotifier(
	bus events.Bus,
	sender messageSender,
	users userLookup,
	appointments appointmentLookup,
	templates templateLookup,
	logger *zap.Logger,
) *Notifier {
	return &Notifier{
		bus:          bus,
		sender:       sender,
		users:        users,
		appointments: appointments,
		templates:    templates,
		logger:       logger,
	}
}

// Run обрабатывает события, пока ctx не отменён
func (n *Notifier) Run(ctx context.Context) error {
	ch, err := n.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	n.logger.Info("Notifier started")

	for event := range ch {
		notifications, err := n.build(ctx, event)
		if err != nil {
			n.logger.Error("Failed to build notifications",
				zap.String("type", string(event.Type)),
				zap.Int64("provider_id", event.ProviderID),
				zap.Error(err),
			)
			continue
		}

		for _, msg := range notifications {
			_, err := n.sender.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.ChatID, Text: msg.Text})
			if err != nil {
				n.logger.Error("Failed to send notification", zap.Int64("chat_id", msg.ChatID), zap.Error(err))
			}
		}
	}

	n.logger.Info("Notifier stopped")
	return nil
}

func (n *Notifier) build(ctx context.Context, event *events.Event) ([]notification, error) {
	provider, err := n.users.GetByID(ctx, event.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	if provider == nil {
		return nil, nil
	}

	loc := time.UTC
	if template, err := n.templates.GetTemplate(ctx, event.ProviderID); err == nil {
		if l, err := template.Location(); err == nil {
			loc = l
		}
	}

	var (
		lines     []string
		clientIDs []int64
		seen      = make(map[int64]bool)
	)
	for _, id := range event.AppointmentIDs {
		appt, err := n.appointments.GetAppointment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get appointment %d: %w", id, err)
		}
		lines = append(lines, formatting.FormatAppointment(appt, loc))
		if !seen[appt.ClientID] {
			seen[appt.ClientID] = true
			clientIDs = append(clientIDs, appt.ClientID)
		}
	}
	body := strings.Join(lines, "\n")

	var providerText, clientText string
	switch event.Type {
	case events.TypeBookingCommitted:
		providerText = fmt.Sprintf("📥 Новая запись (%d):\n%s", len(lines), body)
		clientText = "✅ Вы записаны:\n" + body
	case events.TypeAppointmentUpdated:
		providerText = "🔔 Запись изменена:\n" + body
		clientText = providerText
	case events.TypeSyncConflict:
		providerText = fmt.Sprintf("⚠️ Изменение из календаря не применено: %s\n%s\n\nОтправить свою версию в календарь: /retry <id>", event.Message, body)
	default:
		return nil, nil
	}

	var out []notification
	if provider.TelegramID != 0 {
		out = append(out, notification{ChatID: provider.TelegramID, Text: providerText})
	}
	if clientText == "" {
		return out, nil
	}

	for _, clientID := range clientIDs {
		client, err := n.users.GetByID(ctx, clientID)
		if err != nil {
			return nil, fmt.Errorf("get client: %w", err)
		}
		if client == nil || client.TelegramID == 0 || client.TelegramID == provider.TelegramID {
			continue
		}
		out = append(out, notification{ChatID: client.TelegramID, Text: clientText})
	}

	return out, nil
}
