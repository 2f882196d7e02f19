package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryBusFansOut(t *testing.T) {
	bus := NewMemoryBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	second, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	event := &Event{Type: TypeBookingCommitted, ProviderID: 4, AppointmentIDs: []int64{1, 2}, OccurredAt: time.Now()}
	require.NoError(t, bus.Publish(ctx, event))

	assert.Equal(t, event, <-first)
	assert.Equal(t, event, <-second)
}

func TestMemoryBusClosesOnCancel(t *testing.T) {
	bus := NewMemoryBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription channel was not closed")
	}
}
