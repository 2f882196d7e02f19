package lock

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryLocker сериализует запросы внутри одного процесса.
// Ожидающие получают секцию строго в порядке прихода (FIFO).
type MemoryLocker struct {
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger

	mu       sync.Mutex
	sections map[int64]*section
	seq      uint64
}

type section struct {
	holder  *Lease
	timer   *time.Timer
	waiters []chan *Lease
}

// NewMemoryLocker создаёт локер; ttl - максимальное время удержания, wait - максимальное ожидание
func NewMemoryLocker(ttl, wait time.Duration, logger *zap.Logger) *MemoryLocker {
	return &MemoryLocker{
		ttl:      ttl,
		wait:     wait,
		logger:   logger,
		sections: make(map[int64]*section),
	}
}

// Acquire занимает секцию провайдера или ставит запрос в очередь
func (l *MemoryLocker) Acquire(ctx context.Context, providerID int64) (*Lease, error) {
	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	l.mu.Lock()
	sec, ok := l.sections[providerID]
	if !ok {
		sec = &section{}
		l.sections[providerID] = sec
	}

	if sec.holder == nil {
		lease := l.grantLocked(providerID, sec)
		l.mu.Unlock()
		return lease, nil
	}

	grant := make(chan *Lease, 1)
	sec.waiters = append(sec.waiters, grant)
	l.mu.Unlock()

	select {
	case lease := <-grant:
		return lease, nil
	case <-waitCtx.Done():
		l.mu.Lock()
		removed := removeWaiter(sec, grant)
		l.mu.Unlock()

		if !removed {
			// Секция уже передана нам - возвращаем её следующему
			lease := <-grant
			lease.Release()
		}
		return nil, fmt.Errorf("%w: provider %d", ErrTimeout, providerID)
	}
}

func (l *MemoryLocker) grantLocked(providerID int64, sec *section) *Lease {
	l.seq++
	ctx, cancel := context.WithCancel(context.Background())
	lease := newLease(providerID, strconv.FormatUint(l.seq, 10), ctx, cancel, nil)
	lease.release = func() { l.releaseHolder(providerID, lease, false) }

	sec.holder = lease
	sec.timer = time.AfterFunc(l.ttl, func() { l.releaseHolder(providerID, lease, true) })

	return lease
}

// releaseHolder освобождает секцию, если lease всё ещё её держит, и передаёт её первому ожидающему
func (l *MemoryLocker) releaseHolder(providerID int64, lease *Lease, forced bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sec, ok := l.sections[providerID]
	if !ok || sec.holder != lease {
		return
	}

	sec.timer.Stop()
	sec.holder = nil
	sec.timer = nil

	if forced {
		lease.cancel()
		l.logger.Warn("Reservation force-released after timeout",
			zap.Int64("provider_id", providerID),
			zap.String("token", lease.Token),
			zap.Duration("ttl", l.ttl),
		)
	}

	if len(sec.waiters) == 0 {
		delete(l.sections, providerID)
		return
	}

	next := sec.waiters[0]
	sec.waiters = sec.waiters[1:]
	next <- l.grantLocked(providerID, sec)
}

func removeWaiter(sec *section, grant chan *Lease) bool {
	for i, w := range sec.waiters {
		if w == grant {
			sec.waiters = append(sec.waiters[:i], sec.waiters[i+1:]...)
			return true
		}
	}
	return false
}
