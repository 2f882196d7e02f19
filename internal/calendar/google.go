package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const appointmentIDProperty = "appointment_id"

// CalendarIDResolver возвращает идентификатор Google-календаря провайдера
type CalendarIDResolver interface {
	CalendarID(ctx context.Context, providerID int64) (string, error)
}

// GoogleCalendar адаптер Google Calendar API.
// Курсор изменений - nextSyncToken инкрементальной синхронизации.
type GoogleCalendar struct {
	service  *gcal.Service
	resolver CalendarIDResolver
	logger   *zap.Logger
}

// NewGoogleCalendar создаёт клиент по файлу сервисного аккаунта
func NewGoogleCalendar(ctx context.Context, credentialsFile string, resolver CalendarIDResolver, logger *zap.Logger) (*GoogleCalendar, error) {
	service, err := gcal.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("create google calendar service: %w", err)
	}

	return &GoogleCalendar{
		service:  service,
		resolver: resolver,
		logger:   logger,
	}, nil
}

func (g *GoogleCalendar) CreateEvent(ctx context.Context, providerID int64, event *Event) (string, error) {
	calendarID, err := g.resolver.CalendarID(ctx, providerID)
	if err != nil {
		return "", fmt.Errorf("resolve calendar id: %w", err)
	}

	created, err := g.service.Events.Insert(calendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert google event: %w", err)
	}

	return created.Id, nil
}

func (g *GoogleCalendar) UpdateEvent(ctx context.Context, providerID int64, eventID string, event *Event) error {
	calendarID, err := g.resolver.CalendarID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("resolve calendar id: %w", err)
	}

	_, err = g.service.Events.Patch(calendarID, eventID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("patch google event: %w", err)
	}

	return nil
}

func (g *GoogleCalendar) DeleteEvent(ctx context.Context, providerID int64, eventID string) error {
	calendarID, err := g.resolver.CalendarID(ctx, providerID)
	if err != nil {
		return fmt.Errorf("resolve calendar id: %w", err)
	}

	err = g.service.Events.Delete(calendarID, eventID).Context(ctx).Do()
	if err != nil && !isStatus(err, http.StatusGone) && !isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("delete google event: %w", err)
	}

	return nil
}

func (g *GoogleCalendar) ChangesSince(ctx context.Context, providerID int64, cursor string) ([]Change, string, error) {
	calendarID, err := g.resolver.CalendarID(ctx, providerID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve calendar id: %w", err)
	}

	changes, next, err := g.list(ctx, calendarID, cursor)
	if isStatus(err, http.StatusGone) {
		// Токен синхронизации устарел - полная пересинхронизация
		g.logger.Warn("Google sync token expired, running full sync",
			zap.Int64("provider_id", providerID))
		return g.list(ctx, calendarID, "")
	}

	return changes, next, err
}

func (g *GoogleCalendar) list(ctx context.Context, calendarID, syncToken string) ([]Change, string, error) {
	call := g.service.Events.List(calendarID).ShowDeleted(true).SingleEvents(true)
	if syncToken != "" {
		call = call.SyncToken(syncToken)
	}

	var (
		changes []Change
		next    string
	)

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			change, ok := fromGoogleEvent(item)
			if !ok {
				continue
			}
			changes = append(changes, change)
		}
		if page.NextSyncToken != "" {
			next = page.NextSyncToken
		}
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("list google events: %w", err)
	}

	return changes, next, nil
}

func toGoogleEvent(event *Event) *gcal.Event {
	ge := &gcal.Event{
		Summary: event.Summary,
		Start:   &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:     &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				appointmentIDProperty: strconv.FormatInt(event.AppointmentID, 10),
			},
		},
	}
	if event.Status != "" {
		ge.Status = string(event.Status)
	}
	return ge
}

// fromGoogleEvent пропускает события без ссылки на запись: их синхронизатор не связывает.
// У удалённых событий Google гарантирует только id и status, поэтому удаление
// передаётся всегда, а запись находится по EventID.
func fromGoogleEvent(item *gcal.Event) (Change, bool) {
	appointmentID, linked := linkedAppointmentID(item)
	deleted := item.Status == string(EventStatusCancelled)
	if !linked && !deleted {
		return Change{}, false
	}

	updated, _ := time.Parse(time.RFC3339, item.Updated)
	event := Event{
		ID:            item.Id,
		AppointmentID: appointmentID,
		Summary:       item.Summary,
		Status:        EventStatus(item.Status),
		Updated:       updated,
	}
	if item.Start != nil {
		event.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
	}
	if item.End != nil {
		event.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
	}

	kind := ChangeUpdated
	if deleted {
		kind = ChangeDeleted
	}

	return Change{Kind: kind, EventID: item.Id, Event: event, ModifiedAt: updated}, true
}

func linkedAppointmentID(item *gcal.Event) (int64, bool) {
	if item.ExtendedProperties == nil || item.ExtendedProperties.Private == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(item.ExtendedProperties.Private[appointmentIDProperty], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
