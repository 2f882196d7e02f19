package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryLockerSerializesPerProvider(t *testing.T) {
	locker := NewMemoryLocker(time.Second, time.Second, zap.NewNop())
	ctx := context.Background()

	first, err := locker.Acquire(ctx, 1)
	require.NoError(t, err)

	other, err := locker.Acquire(ctx, 2)
	require.NoError(t, err, "different providers do not block each other")
	other.Release()

	acquired := make(chan *Lease, 1)
	go func() {
		lease, err := locker.Acquire(ctx, 1)
		if err == nil {
			acquired <- lease
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must wait while the section is held")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()

	select {
	case lease := <-acquired:
		lease.Release()
	case <-time.After(time.Second):
		t.Fatal("waiter was not granted the section after release")
	}
}

func TestMemoryLockerGrantsInArrivalOrder(t *testing.T) {
	locker := NewMemoryLocker(time.Second, 2*time.Second, zap.NewNop())
	ctx := context.Background()

	holder, err := locker.Acquire(ctx, 7)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			lease, err := locker.Acquire(ctx, 7)
			if err != nil {
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			lease.Release()
		}(i)
		// Гарантируем порядок постановки в очередь
		time.Sleep(10 * time.Millisecond)
	}

	holder.Release()
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestMemoryLockerWaitTimeout(t *testing.T) {
	locker := NewMemoryLocker(time.Second, 30*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	holder, err := locker.Acquire(ctx, 3)
	require.NoError(t, err)
	defer holder.Release()

	_, err = locker.Acquire(ctx, 3)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestMemoryLockerForceReleasesExpiredLease(t *testing.T) {
	locker := NewMemoryLocker(100*time.Millisecond, time.Second, zap.NewNop())
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, 5)
	require.NoError(t, err)

	next, err := locker.Acquire(ctx, 5)
	require.NoError(t, err, "waiter gets the section once the holder's lease expires")
	defer next.Release()

	assert.True(t, stale.Expired())
	assert.False(t, next.Expired())

	// Освобождение просроченной аренды не должно снимать чужую
	stale.Release()
	assert.False(t, next.Expired())

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locker.Acquire(shortCtx, 5)
	assert.True(t, errors.Is(err, ErrTimeout), "section is still held by the new lease")
}
