package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/calendar"
	"github.com/Freeeeeet/booking_engine/internal/events"
	"github.com/Freeeeeet/booking_engine/internal/lock"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const providerID int64 = 100

// 2026-10-12 понедельник; большинство тестов бронирует понедельник 2026-10-19
var (
	testNow    = time.Date(2026, 10, 12, 8, 0, 0, 0, time.UTC)
	nextMonday = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock *testClock

	templates    *memory.TemplateStore
	blocked      *memory.BlockedIntervalStore
	appointments *memory.AppointmentStore
	syncStore    *memory.SyncStore
	calendar     *calendar.MemoryCalendar
	bus          *events.MemoryBus
	locker       *lock.MemoryLocker

	availability *AvailabilityService
	blocks       *BlockedIntervalService
	validator    *Validator
	slots        *SlotService
	booking      *BookingService
	sync         *SyncService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	clock := &testClock{now: testNow}

	f := &fixture{
		t:            t,
		ctx:          context.Background(),
		clock:        clock,
		templates:    memory.NewTemplateStore(),
		blocked:      memory.NewBlockedIntervalStore(),
		appointments: memory.NewAppointmentStore(),
		syncStore:    memory.NewSyncStore(),
		calendar:     calendar.NewMemoryCalendar(clock.Now),
		bus:          events.NewMemoryBus(logger),
		locker:       lock.NewMemoryLocker(time.Second, time.Second, logger),
	}

	f.availability = NewAvailabilityService(f.templates, TemplateDefaults{
		MaxDailyAppointments: 8,
		AdvanceBookingDays:   60,
		Timezone:             "UTC",
	}, logger)
	f.availability.now = clock.Now

	f.blocks = NewBlockedIntervalService(f.blocked, f.availability, logger)

	f.validator = NewValidator(f.availability, f.blocked, f.appointments)
	f.validator.now = clock.Now

	f.slots = NewSlotService(f.validator, 15*time.Minute, logger)

	f.booking = NewBookingService(f.validator, f.appointments, f.locker, f.bus, logger)
	f.booking.now = clock.Now

	f.sync = NewSyncService(f.appointments, f.syncStore, f.calendar, f.booking, f.availability, f.bus, 2, logger)
	f.sync.now = clock.Now

	f.setTemplate(providerID, func(*model.AvailabilityTemplate) {})

	return f
}

// setTemplate сохраняет шаблон пн-пт 09:00-17:00, буфер 15 минут, после правок mutate
func (f *fixture) setTemplate(provider int64, mutate func(*model.AvailabilityTemplate)) {
	f.t.Helper()

	template := &model.AvailabilityTemplate{
		WeeklySchedule:       DefaultWeeklySchedule(),
		BufferMinutes:        15,
		MaxDailyAppointments: 8,
		AdvanceBookingDays:   60,
		MinNoticeHours:       0,
		Timezone:             "UTC",
	}
	mutate(template)

	require.NoError(f.t, f.availability.ReplaceTemplate(f.ctx, provider, template))
}

// at время понедельника 2026-10-19 плюс days дней
func at(days, hour, minute int) time.Time {
	return nextMonday.AddDate(0, 0, days).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// book создаёт одиночную запись через координатор
func (f *fixture) book(start time.Time, duration time.Duration) *model.Appointment {
	f.t.Helper()

	created, err := f.booking.RequestBooking(f.ctx, BookingRequest{
		ProviderID: providerID,
		ClientID:   1,
		Start:      start,
		Duration:   duration,
	})
	require.NoError(f.t, err)
	require.Len(f.t, created, 1)
	return created[0]
}

func (f *fixture) get(id int64) *model.Appointment {
	f.t.Helper()

	appt, err := f.appointments.GetByID(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, appt)
	return appt
}
