package memory

import (
	"context"
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func appointment(provider, client int64, start time.Time, status model.AppointmentStatus) *model.Appointment {
	return &model.Appointment{
		ProviderID: provider,
		ClientID:   client,
		StartTime:  start,
		EndTime:    start.Add(time.Hour),
		Status:     status,
	}
}

func TestCreateBatchAssignsIDsAndDefaults(t *testing.T) {
	store := NewAppointmentStore()
	ctx := context.Background()

	batch := []*model.Appointment{
		appointment(1, 2, base, model.AppointmentStatusPending),
		appointment(1, 2, base.AddDate(0, 0, 7), model.AppointmentStatusPending),
	}
	require.NoError(t, store.CreateBatch(ctx, batch))

	assert.Equal(t, int64(1), batch[0].ID)
	assert.Equal(t, int64(2), batch[1].ID)
	assert.Equal(t, model.SyncStateUnsynced, batch[0].ExternalSyncState)

	got, err := store.GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, base.AddDate(0, 0, 7), got.StartTime)

	missing, err := store.GetByID(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreReturnsCopies(t *testing.T) {
	store := NewAppointmentStore()
	ctx := context.Background()

	seriesID := uuid.New()
	a := appointment(1, 2, base, model.AppointmentStatusPending)
	a.SeriesID = &seriesID
	require.NoError(t, store.CreateBatch(ctx, []*model.Appointment{a}))

	// Изменения вызывающего не попадают в хранилище
	a.Status = model.AppointmentStatusCancelled
	got, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusPending, got.Status)

	*got.SeriesID = uuid.Nil
	again, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, seriesID, *again.SeriesID)
}

func TestListActiveInRangeSkipsCancelledAndTouching(t *testing.T) {
	store := NewAppointmentStore()
	ctx := context.Background()

	require.NoError(t, store.CreateBatch(ctx, []*model.Appointment{
		appointment(1, 2, base, model.AppointmentStatusConfirmed),
		appointment(1, 2, base.Add(2*time.Hour), model.AppointmentStatusCancelled),
		appointment(1, 2, base.Add(4*time.Hour), model.AppointmentStatusPending),
		appointment(3, 2, base, model.AppointmentStatusPending),
	}))

	found, err := store.ListActiveInRange(ctx, 1, base.Add(time.Hour), base.Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, base.Add(4*time.Hour), found[0].StartTime)

	byClient, err := store.ListByClientID(ctx, 2, base)
	require.NoError(t, err)
	assert.Len(t, byClient, 4)
	assert.True(t, byClient[0].StartTime.Equal(base))
}

func TestLocalUpdatesMarkUnsynced(t *testing.T) {
	store := NewAppointmentStore()
	ctx := context.Background()

	a := appointment(1, 2, base, model.AppointmentStatusPending)
	require.NoError(t, store.CreateBatch(ctx, []*model.Appointment{a}))

	syncedAt := base.Add(-time.Hour)
	eventID := "evt-1"
	require.NoError(t, store.UpdateSyncState(ctx, a.ID, model.SyncStateSynced, &eventID, &syncedAt))

	at := base.Add(-30 * time.Minute)
	require.NoError(t, store.UpdateStatus(ctx, a.ID, model.AppointmentStatusConfirmed, at))

	got, err := store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateUnsynced, got.ExternalSyncState)
	assert.Equal(t, at, got.UpdatedAt)
	assert.Equal(t, "evt-1", *got.ExternalEventID)
	assert.True(t, got.ChangedSinceSync())

	linked, err := store.GetByExternalEventID(ctx, 1, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, linked)
	assert.Equal(t, a.ID, linked.ID)

	require.NoError(t, store.ApplyExternalTime(ctx, a.ID, base.Add(time.Hour), base.Add(2*time.Hour), model.SyncStateUnsynced, base))
	got, err = store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateUnsynced, got.ExternalSyncState)
	assert.Equal(t, base, *got.SyncedAt)
	assert.Equal(t, at, got.UpdatedAt)
	assert.True(t, got.StartTime.Equal(base.Add(time.Hour)))

	require.NoError(t, store.ApplyExternalTime(ctx, a.ID, base.Add(time.Hour), base.Add(2*time.Hour), model.SyncStateSynced, base))
	got, err = store.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStateSynced, got.ExternalSyncState)
}

func TestCompareAndSetSyncState(t *testing.T) {
	store := NewAppointmentStore()
	ctx := context.Background()

	a := appointment(1, 2, base, model.AppointmentStatusPending)
	require.NoError(t, store.CreateBatch(ctx, []*model.Appointment{a}))

	ok, err := store.CompareAndSetSyncState(ctx, a.ID, model.SyncStateUnsynced, model.SyncStateSyncing, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.CompareAndSetSyncState(ctx, a.ID, model.SyncStateUnsynced, model.SyncStateSyncing, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := store.ListBySyncState(ctx, 1, model.SyncStateSyncing)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = store.CompareAndSetSyncState(ctx, 42, model.SyncStateUnsynced, model.SyncStateSyncing, nil, nil)
	assert.Error(t, err)
}

func TestCancelledContext(t *testing.T) {
	store := NewAppointmentStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, store.CreateBatch(ctx, []*model.Appointment{appointment(1, 2, base, model.AppointmentStatusPending)}), context.Canceled)
	_, err := store.ListActiveInRange(ctx, 1, base, base.Add(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteAfterContextCancelledWhileWaiting(t *testing.T) {
	store := NewAppointmentStore()
	a := appointment(1, 2, base, model.AppointmentStatusPending)
	require.NoError(t, store.CreateBatch(context.Background(), []*model.Appointment{a}))

	ctx, cancel := context.WithCancel(context.Background())

	store.mu.Lock()
	errs := make(chan error, 2)
	go func() {
		errs <- store.CreateBatch(ctx, []*model.Appointment{appointment(1, 3, base.Add(2*time.Hour), model.AppointmentStatusPending)})
	}()
	go func() {
		errs <- store.UpdateTime(ctx, a.ID, base.Add(4*time.Hour), base.Add(5*time.Hour), base)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	store.mu.Unlock()

	assert.ErrorIs(t, <-errs, context.Canceled)
	assert.ErrorIs(t, <-errs, context.Canceled)

	active, err := store.ListActiveInRange(context.Background(), 1, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].StartTime.Equal(base))
}
