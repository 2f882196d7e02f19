package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSlotsArgs(t *testing.T) {
	args, err := parseSlotsArgs("/slots 7 2026-10-19 90")
	require.NoError(t, err)

	assert.Equal(t, int64(7), args.ProviderID)
	assert.Equal(t, 90*time.Minute, args.Duration)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), args.Day.In(time.UTC))

	args, err = parseSlotsArgs("/slots 7 2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(DefaultDurationMinutes)*time.Minute, args.Duration)
}

func TestParseSlotsArgsErrors(t *testing.T) {
	for _, text := range []string{
		"/slots",
		"/slots 7",
		"/slots x 2026-10-19",
		"/slots 7 19.10.2026",
		"/slots 7 2026-10-19 1",
		"/slots 7 2026-10-19 60 extra",
	} {
		_, err := parseSlotsArgs(text)
		assert.ErrorIs(t, err, errUsage, text)
	}
}

func TestParseBookArgsSingle(t *testing.T) {
	args, err := parseBookArgs("/book 3 2026-10-19 10:30 45")
	require.NoError(t, err)

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	assert.Equal(t, int64(3), args.ProviderID)
	assert.Equal(t, 45*time.Minute, args.Duration)
	assert.Equal(t, time.Date(2026, 10, 19, 10, 30, 0, 0, tokyo), args.Start.In(tokyo))
	assert.Nil(t, args.recurrence(tokyo))
}

func TestParseBookArgsSeriesEndsAfterUntilDay(t *testing.T) {
	args, err := parseBookArgs("/book 3 2026-10-19 10:00 60 Weekly 2026-11-09")
	require.NoError(t, err)

	rec := args.recurrence(time.UTC)
	require.NotNil(t, rec)
	assert.Equal(t, model.FrequencyWeekly, rec.Frequency)
	assert.Equal(t, time.Date(2026, 11, 10, 0, 0, 0, 0, time.UTC), rec.EndDate)

	// Последний день включается в серию
	req := service.BookingRequest{Start: args.Start.In(time.UTC), Duration: args.Duration, Recurrence: rec}
	candidates, err := req.Candidates()
	require.NoError(t, err)
	require.Len(t, candidates, 4)
	assert.Equal(t, time.Date(2026, 11, 9, 10, 0, 0, 0, time.UTC), candidates[3].Start)
}

func TestParseBookArgsErrors(t *testing.T) {
	for _, text := range []string{
		"/book 3 2026-10-19 10:00",
		"/book 3 2026-10-19 25:00 60",
		"/book 3 2026-10-19 10:00 600",
		"/book 3 2026-10-19 10:00 60 yearly 2026-12-01",
		"/book 3 2026-10-19 10:00 60 weekly",
		"/book 3 2026-10-19 10:00 60 weekly 2026/12/01",
		"/book 0 2026-10-19 10:00 60",
	} {
		_, err := parseBookArgs(text)
		assert.ErrorIs(t, err, errUsage, text)
	}
}

func TestParseRescheduleAndIDArgs(t *testing.T) {
	args, err := parseRescheduleArgs("/reschedule 12 2026-10-20 14:00")
	require.NoError(t, err)
	assert.Equal(t, int64(12), args.AppointmentID)
	assert.Equal(t, time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC), args.Start.In(time.UTC))

	id, err := parseIDArg("/cancel 5", "/cancel <appointment_id>")
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	_, err = parseIDArg("/cancel", "/cancel <appointment_id>")
	assert.ErrorIs(t, err, errUsage)
	_, err = parseIDArg("/cancel -1", "/cancel <appointment_id>")
	assert.ErrorIs(t, err, errUsage)
}

func TestParseBlockArgs(t *testing.T) {
	args, err := parseBlockArgs("/block 2026-12-24 00:00 2027-01-02 00:00 vacation")
	require.NoError(t, err)
	assert.Equal(t, model.BlockReasonVacation, args.Reason)
	assert.Equal(t, time.Date(2027, 1, 2, 0, 0, 0, 0, time.UTC), args.End.In(time.UTC))

	args, err = parseBlockArgs("/block 2026-12-24 09:00 2026-12-24 12:00")
	require.NoError(t, err)
	assert.Equal(t, model.BlockReasonPersonal, args.Reason)

	_, err = parseBlockArgs("/block 2026-12-24 09:00 2026-12-24 12:00 holiday")
	assert.ErrorIs(t, err, errUsage)
}

func TestParseHoursArgs(t *testing.T) {
	args, err := parseHoursArgs("/hours TUE 09:00-12:00,13:00-18:00")
	require.NoError(t, err)
	assert.Equal(t, time.Tuesday, args.Weekday)
	assert.Equal(t, []model.WorkInterval{
		model.NewWorkInterval(9, 0, 12, 0),
		model.NewWorkInterval(13, 0, 18, 0),
	}, args.Intervals)

	args, err = parseHoursArgs("/hours sun 20:00-24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*60, args.Intervals[0].EndMinute)

	args, err = parseHoursArgs("/hours sat off")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, args.Weekday)
	assert.Empty(t, args.Intervals)

	for _, text := range []string{"/hours", "/hours xyz 09:00-10:00", "/hours mon 09:00", "/hours mon 9am-5pm"} {
		_, err := parseHoursArgs(text)
		assert.ErrorIs(t, err, errUsage, text)
	}
}

func TestParseToggle(t *testing.T) {
	on, err := parseToggle("/autoconfirm ON", "/autoconfirm on|off")
	require.NoError(t, err)
	assert.True(t, on)

	off, err := parseToggle("/autoconfirm off", "/autoconfirm on|off")
	require.NoError(t, err)
	assert.False(t, off)

	_, err = parseToggle("/autoconfirm maybe", "/autoconfirm on|off")
	assert.ErrorIs(t, err, errUsage)
}

func TestDescribeError(t *testing.T) {
	conflict := &service.BookingConflictError{
		ProviderID: 1,
		Occurrences: []*service.ValidationResult{
			{OK: true},
			{
				Candidate: candidateAt(time.Date(2026, 10, 26, 10, 0, 0, 0, time.UTC)),
				Reason:    service.ReasonBlocked,
				Conflicts: []service.Conflict{{Reason: service.ReasonBlocked}},
			},
		},
	}

	text := describeError(conflict, time.UTC)
	assert.Contains(t, text, "1 из 2")
	assert.Contains(t, text, "26.10.2026 10:00")
	assert.Contains(t, text, "закрыто")

	assert.Contains(t, describeError(service.ErrReservationTimeout, time.UTC), "Попробуйте ещё раз")
	assert.Contains(t, describeError(usage("/cancel <id>", ""), time.UTC), "/cancel <id>")
	assert.Equal(t, "❌ Произошла ошибка. Попробуйте позже.", describeError(errors.New("boom"), time.UTC))
}
