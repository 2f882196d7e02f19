package controller

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/events"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []notification
}

func (s *recordingSender) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, notification{ChatID: params.ChatID.(int64), Text: params.Text})
	return &models.Message{}, nil
}

func (s *recordingSender) messages() []notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notification(nil), s.sent...)
}

type directory struct {
	users        map[int64]*model.User
	appointments map[int64]*model.Appointment
	timezone     string
}

func (d *directory) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return d.users[id], nil
}

func (d *directory) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	a, ok := d.appointments[id]
	if !ok {
		return nil, fmt.Errorf("appointment %d not found", id)
	}
	return a, nil
}

func (d *directory) GetTemplate(ctx context.Context, providerID int64) (*model.AvailabilityTemplate, error) {
	return &model.AvailabilityTemplate{ProviderID: providerID, Timezone: d.timezone}, nil
}

func newDirectory() *directory {
	start := time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC)
	return &directory{
		users: map[int64]*model.User{
			1: {ID: 1, TelegramID: 1001, IsProvider: true},
			2: {ID: 2, TelegramID: 1002},
		},
		appointments: map[int64]*model.Appointment{
			10: {ID: 10, ProviderID: 1, ClientID: 2, StartTime: start, EndTime: start.Add(time.Hour), Status: model.AppointmentStatusPending},
			11: {ID: 11, ProviderID: 1, ClientID: 2, StartTime: start.AddDate(0, 0, 7), EndTime: start.AddDate(0, 0, 7).Add(time.Hour), Status: model.AppointmentStatusPending},
		},
		timezone: "Europe/Moscow",
	}
}

func TestNotifierBuildCommitted(t *testing.T) {
	d := newDirectory()
	n := NewNotifier(nil, nil, d, d, d, zap.NewNop())

	out, err := n.build(context.Background(), &events.Event{
		Type:           events.TypeBookingCommitted,
		ProviderID:     1,
		AppointmentIDs: []int64{10, 11},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, int64(1001), out[0].ChatID)
	assert.Contains(t, out[0].Text, "Новая запись (2)")
	// 07:00 UTC в часовом поясе провайдера
	assert.Contains(t, out[0].Text, "10:00-11:00")

	assert.Equal(t, int64(1002), out[1].ChatID)
	assert.Contains(t, out[1].Text, "Вы записаны")
}

func TestNotifierBuildSyncConflictOnlyForProvider(t *testing.T) {
	d := newDirectory()
	n := NewNotifier(nil, nil, d, d, d, zap.NewNop())

	out, err := n.build(context.Background(), &events.Event{
		Type:           events.TypeSyncConflict,
		ProviderID:     1,
		AppointmentIDs: []int64{10},
		Message:        "slot taken",
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, int64(1001), out[0].ChatID)
	assert.Contains(t, out[0].Text, "slot taken")
	assert.Contains(t, out[0].Text, "/retry")
}

func TestNotifierBuildUnknownProvider(t *testing.T) {
	d := newDirectory()
	n := NewNotifier(nil, nil, d, d, d, zap.NewNop())

	out, err := n.build(context.Background(), &events.Event{Type: events.TypeAppointmentUpdated, ProviderID: 99})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestNotifierRunDeliversUntilCancelled(t *testing.T) {
	d := newDirectory()
	bus := events.NewMemoryBus(zap.NewNop())
	sender := &recordingSender{}
	n := NewNotifier(bus, sender, d, d, d, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_ = bus.Publish(ctx, &events.Event{
			Type:           events.TypeAppointmentUpdated,
			ProviderID:     1,
			AppointmentIDs: []int64{10},
		})
		return len(sender.messages()) >= 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}

	for _, msg := range sender.messages() {
		assert.Contains(t, msg.Text, "Запись изменена")
	}
}

func TestCommandName(t *testing.T) {
	assert.Equal(t, "book", commandName("/book 1 2026-10-19 10:00 60"))
	assert.Equal(t, "slots", commandName("/Slots@booking_bot 1 2026-10-19"))
	assert.Equal(t, "", commandName("hello"))
	assert.Equal(t, "", commandName(""))
}
