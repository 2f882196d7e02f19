package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// MemoryBus шина событий внутри процесса
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[chan *Event]struct{}
	closed      bool
	logger      *zap.Logger
}

func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	return &MemoryBus{
		subscribers: make(map[chan *Event]struct{}),
		logger:      logger,
	}
}

// Publish рассылает событие всем подписчикам, не блокируясь на переполненных
func (b *MemoryBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subscriber := range b.subscribers {
		select {
		case subscriber <- event:
		default:
			b.logger.Warn("Subscriber channel full, dropping event",
				zap.String("type", string(event.Type)),
				zap.Int64("provider_id", event.ProviderID),
			)
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	ch := make(chan *Event, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, nil
	}
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()

	return ch, nil
}

func (b *MemoryBus) remove(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.closed = true
	return nil
}
