package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/events"
	"github.com/Freeeeeet/booking_engine/internal/interval"
	"github.com/Freeeeeet/booking_engine/internal/lock"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestBookingSingle(t *testing.T) {
	f := newFixture(t)

	created, err := f.booking.RequestBooking(f.ctx, BookingRequest{
		ProviderID:    providerID,
		ClientID:      7,
		Start:         at(0, 10, 0),
		Duration:      time.Hour,
		InitialStatus: model.AppointmentStatusConfirmed,
	})
	require.NoError(t, err)
	require.Len(t, created, 1)

	stored := f.get(created[0].ID)
	assert.Equal(t, model.AppointmentStatusConfirmed, stored.Status)
	assert.Equal(t, model.SyncStateUnsynced, stored.ExternalSyncState)
	assert.Nil(t, stored.SeriesID)
	assert.Equal(t, at(0, 11, 0), stored.EndTime)
	assert.Equal(t, testNow, stored.CreatedAt)
}

func TestRequestBookingRejectsUnknownInitialStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.booking.RequestBooking(f.ctx, BookingRequest{
		ProviderID:    providerID,
		Start:         at(0, 10, 0),
		Duration:      time.Hour,
		InitialStatus: model.AppointmentStatusCompleted,
	})
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestRequestBookingConcurrentSameSlot(t *testing.T) {
	f := newFixture(t)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(client int64) {
			defer wg.Done()
			_, err := f.booking.RequestBooking(f.ctx, BookingRequest{
				ProviderID: providerID,
				ClientID:   client,
				Start:      at(0, 10, 0),
				Duration:   time.Hour,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrBookingConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicts)

	active, err := f.appointments.ListActiveInRange(f.ctx, providerID, at(0, 0, 0), at(1, 0, 0))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRequestBookingSeriesIsAllOrNothing(t *testing.T) {
	f := newFixture(t)

	// Третье из пяти еженедельных вхождений попадает на закрытый интервал
	_, err := f.blocks.Add(f.ctx, providerID, at(14, 9, 0), at(14, 12, 0), model.BlockReasonVacation, nil)
	require.NoError(t, err)

	req := BookingRequest{
		ProviderID: providerID,
		ClientID:   1,
		Start:      at(0, 10, 0),
		Duration:   time.Hour,
		Recurrence: &model.Recurrence{Frequency: model.FrequencyWeekly, EndDate: at(35, 0, 0)},
	}

	_, err = f.booking.RequestBooking(f.ctx, req)
	require.Error(t, err)

	var conflict *BookingConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Len(t, conflict.Occurrences, 5)
	failed := conflict.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, at(14, 10, 0), failed[0].Candidate.Start)
	assert.Equal(t, ReasonBlocked, failed[0].Reason)

	stored, err := f.appointments.ListByClientID(f.ctx, 1, at(-7, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRequestBookingSeriesSharesSeriesID(t *testing.T) {
	f := newFixture(t)

	created, err := f.booking.RequestBooking(f.ctx, BookingRequest{
		ProviderID: providerID,
		ClientID:   1,
		Start:      at(0, 10, 0),
		Duration:   time.Hour,
		Recurrence: &model.Recurrence{Frequency: model.FrequencyBiweekly, EndDate: at(42, 0, 0)},
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	require.NotNil(t, created[0].SeriesID)
	series, err := f.appointments.GetBySeriesID(f.ctx, *created[0].SeriesID)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, at(0, 10, 0), series[0].StartTime)
	assert.Equal(t, at(14, 10, 0), series[1].StartTime)
	assert.Equal(t, at(28, 10, 0), series[2].StartTime)
}

func TestBookingRequestMonthlyClampsToMonthEnd(t *testing.T) {
	req := BookingRequest{
		Start:      time.Date(2027, 1, 31, 10, 0, 0, 0, time.UTC),
		Duration:   time.Hour,
		Recurrence: &model.Recurrence{Frequency: model.FrequencyMonthly, EndDate: time.Date(2027, 5, 1, 0, 0, 0, 0, time.UTC)},
	}

	candidates, err := req.Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	assert.Equal(t, time.Date(2027, 2, 28, 10, 0, 0, 0, time.UTC), candidates[1].Start)
	assert.Equal(t, time.Date(2027, 3, 31, 10, 0, 0, 0, time.UTC), candidates[2].Start)
	assert.Equal(t, time.Date(2027, 4, 30, 10, 0, 0, 0, time.UTC), candidates[3].Start)
	assert.Equal(t, time.Date(2027, 4, 30, 11, 0, 0, 0, time.UTC), candidates[3].End)
}

func TestBookingRequestRecurrenceErrors(t *testing.T) {
	backwards := BookingRequest{
		Start:      at(7, 10, 0),
		Duration:   time.Hour,
		Recurrence: &model.Recurrence{Frequency: model.FrequencyWeekly, EndDate: at(0, 0, 0)},
	}
	_, err := backwards.Candidates()
	assert.True(t, errors.Is(err, ErrInvalidRecurrence))

	tooLong := BookingRequest{
		Start:      at(0, 10, 0),
		Duration:   time.Hour,
		Recurrence: &model.Recurrence{Frequency: model.FrequencyDaily, EndDate: at(3*365, 0, 0)},
	}
	_, err = tooLong.Candidates()
	assert.True(t, errors.Is(err, ErrRecurrenceTooLong))
}

func TestPreviewBookingDoesNotCommit(t *testing.T) {
	f := newFixture(t)

	results, err := f.booking.PreviewBooking(f.ctx, BookingRequest{
		ProviderID: providerID,
		ClientID:   1,
		Start:      at(0, 10, 0),
		Duration:   time.Hour,
		Recurrence: &model.Recurrence{Frequency: model.FrequencyDaily, EndDate: at(7, 0, 0)},
	})
	require.NoError(t, err)
	require.Len(t, results, 7)

	var ok int
	for _, r := range results {
		if r.OK {
			ok++
		}
	}
	assert.Equal(t, 5, ok, "saturday and sunday are outside working hours")

	stored, err := f.appointments.ListByClientID(f.ctx, 1, at(0, 0, 0))
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRescheduleExcludesItself(t *testing.T) {
	f := newFixture(t)
	appt := f.book(at(0, 10, 0), time.Hour)
	other := f.book(at(0, 13, 0), time.Hour)

	moved, err := f.booking.RescheduleAppointment(f.ctx, appt.ID, at(0, 10, 30))
	require.NoError(t, err)
	assert.Equal(t, at(0, 10, 30), moved.StartTime)
	assert.Equal(t, at(0, 11, 30), moved.EndTime)
	assert.Equal(t, model.SyncStateUnsynced, moved.ExternalSyncState)

	_, err = f.booking.RescheduleAppointment(f.ctx, appt.ID, at(0, 12, 30))
	var conflict *BookingConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, other.ID, conflict.Failed()[0].Conflicts[0].AppointmentID)

	assert.Equal(t, at(0, 10, 30), f.get(appt.ID).StartTime)
}

func TestStatusTransitions(t *testing.T) {
	f := newFixture(t)
	appt := f.book(at(0, 10, 0), time.Hour)

	_, err := f.booking.CompleteAppointment(f.ctx, appt.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "pending cannot be completed")

	f.clock.Set(testNow.Add(time.Hour))
	confirmed, err := f.booking.ConfirmAppointment(f.ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, confirmed.Status)
	assert.Equal(t, testNow.Add(time.Hour), confirmed.UpdatedAt)

	noShow, err := f.booking.MarkNoShow(f.ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, noShow.Status)

	_, err = f.booking.CancelAppointment(f.ctx, appt.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition), "no_show is terminal")

	_, err = f.booking.ConfirmAppointment(f.ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCancelFreesTheSlot(t *testing.T) {
	f := newFixture(t)
	appt := f.book(at(0, 10, 0), time.Hour)

	_, err := f.booking.CancelAppointment(f.ctx, appt.ID)
	require.NoError(t, err)

	again := f.book(at(0, 10, 0), time.Hour)
	assert.NotEqual(t, appt.ID, again.ID)
}

func TestCancelSeriesSkipsTerminalOccurrences(t *testing.T) {
	f := newFixture(t)

	created, err := f.booking.RequestBooking(f.ctx, BookingRequest{
		ProviderID:    providerID,
		ClientID:      1,
		Start:         at(0, 10, 0),
		Duration:      time.Hour,
		Recurrence:    &model.Recurrence{Frequency: model.FrequencyWeekly, EndDate: at(21, 0, 0)},
		InitialStatus: model.AppointmentStatusConfirmed,
	})
	require.NoError(t, err)
	require.Len(t, created, 3)

	_, err = f.booking.CompleteAppointment(f.ctx, created[0].ID)
	require.NoError(t, err)

	cancelled, err := f.booking.CancelSeries(f.ctx, *created[0].SeriesID)
	require.NoError(t, err)
	assert.Len(t, cancelled, 2)

	assert.Equal(t, model.AppointmentStatusCompleted, f.get(created[0].ID).Status)
	assert.Equal(t, model.AppointmentStatusCancelled, f.get(created[1].ID).Status)
	assert.Equal(t, model.AppointmentStatusCancelled, f.get(created[2].ID).Status)
}

func TestReservationTimeoutWhileSectionHeld(t *testing.T) {
	f := newFixture(t)
	f.booking.locker = lock.NewMemoryLocker(time.Second, 30*time.Millisecond, zap.NewNop())

	held, err := f.booking.locker.Acquire(f.ctx, providerID)
	require.NoError(t, err)
	defer held.Release()

	_, err = f.booking.RequestBooking(f.ctx, BookingRequest{
		ProviderID: providerID,
		Start:      at(0, 10, 0),
		Duration:   time.Hour,
	})
	assert.True(t, errors.Is(err, ErrReservationTimeout))
}

func TestReserveAndCommitAbortsWhenLeaseExpires(t *testing.T) {
	f := newFixture(t)
	f.booking.locker = lock.NewMemoryLocker(50*time.Millisecond, time.Second, zap.NewNop())

	_, err := f.booking.ReserveAndCommit(f.ctx, providerID, []interval.Interval{iv(at(0, 10, 0), time.Hour)}, 0,
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	assert.True(t, errors.Is(err, ErrReservationTimeout))
}

func TestRequestBookingPublishesCommit(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()
	ch, err := f.bus.Subscribe(ctx)
	require.NoError(t, err)

	appt := f.book(at(0, 10, 0), time.Hour)

	select {
	case event := <-ch:
		assert.Equal(t, events.TypeBookingCommitted, event.Type)
		assert.Equal(t, providerID, event.ProviderID)
		assert.Equal(t, []int64{appt.ID}, event.AppointmentIDs)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}
