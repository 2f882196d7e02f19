package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gcal "google.golang.org/api/calendar/v3"
)

var start = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func TestGoogleEventRoundTripKeepsLink(t *testing.T) {
	ge := toGoogleEvent(&Event{
		AppointmentID: 17,
		Summary:       "Appointment #17",
		Start:         start,
		End:           start.Add(time.Hour),
		Status:        EventStatusConfirmed,
	})

	assert.Equal(t, "2026-10-19T09:00:00Z", ge.Start.DateTime)
	assert.Equal(t, "17", ge.ExtendedProperties.Private[appointmentIDProperty])

	ge.Id = "g1"
	ge.Updated = "2026-10-19T08:00:00Z"

	change, ok := fromGoogleEvent(ge)
	require.True(t, ok)
	assert.Equal(t, ChangeUpdated, change.Kind)
	assert.Equal(t, "g1", change.EventID)
	assert.Equal(t, int64(17), change.Event.AppointmentID)
	assert.True(t, change.Event.Start.Equal(start))
	assert.True(t, change.Event.End.Equal(start.Add(time.Hour)))
	assert.Equal(t, time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC), change.ModifiedAt)
}

func TestFromGoogleEventCancelledIsDeletion(t *testing.T) {
	ge := toGoogleEvent(&Event{AppointmentID: 3, Start: start, End: start.Add(time.Hour)})
	ge.Id = "g3"
	ge.Status = string(EventStatusCancelled)

	change, ok := fromGoogleEvent(ge)
	require.True(t, ok)
	assert.Equal(t, ChangeDeleted, change.Kind)
}

func TestFromGoogleEventDeletionWithoutLink(t *testing.T) {
	change, ok := fromGoogleEvent(&gcal.Event{Id: "evt-1", Status: string(EventStatusCancelled)})
	require.True(t, ok)
	assert.Equal(t, ChangeDeleted, change.Kind)
	assert.Equal(t, "evt-1", change.EventID)
	assert.Zero(t, change.Event.AppointmentID)
	assert.True(t, change.ModifiedAt.IsZero())
}

func TestFromGoogleEventSkipsUnlinked(t *testing.T) {
	_, ok := fromGoogleEvent(&gcal.Event{Id: "personal", Summary: "Lunch"})
	assert.False(t, ok)

	_, ok = fromGoogleEvent(&gcal.Event{
		Id:                 "foreign",
		ExtendedProperties: &gcal.EventExtendedProperties{Private: map[string]string{"other": "1"}},
	})
	assert.False(t, ok)
}

func TestMemoryCalendarChangeLog(t *testing.T) {
	ctx := context.Background()
	now := start
	c := NewMemoryCalendar(func() time.Time { return now })

	id, err := c.CreateEvent(ctx, 1, &Event{AppointmentID: 5, Start: start, End: start.Add(time.Hour)})
	require.NoError(t, err)

	changes, cursor, err := c.ChangesSince(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeCreated, changes[0].Kind)

	now = start.Add(time.Minute)
	require.NoError(t, c.Move(1, id, start.Add(2*time.Hour), start.Add(3*time.Hour), now))
	require.NoError(t, c.Remove(1, id, now))

	changes, next, err := c.ChangesSince(ctx, 1, cursor)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeUpdated, changes[0].Kind)
	assert.True(t, changes[0].Event.Start.Equal(start.Add(2*time.Hour)))
	assert.Equal(t, ChangeDeleted, changes[1].Kind)

	changes, _, err = c.ChangesSince(ctx, 1, next)
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, ok := c.Get(1, id)
	assert.False(t, ok)

	// Провайдеры изолированы
	changes, _, err = c.ChangesSince(ctx, 2, "")
	require.NoError(t, err)
	assert.Empty(t, changes)

	_, _, err = c.ChangesSince(ctx, 1, "abc")
	assert.Error(t, err)
}
