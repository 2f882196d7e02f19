package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout возвращается, если секцию провайдера не удалось занять за отведённое время
var ErrTimeout = errors.New("reservation timeout")

// Locker выдаёт эксклюзивную аренду на секцию конкретного провайдера
type Locker interface {
	Acquire(ctx context.Context, providerID int64) (*Lease, error)
}

// Lease аренда секции провайдера.
// Context() отменяется при принудительном освобождении по истечении TTL.
type Lease struct {
	ProviderID int64
	Token      string

	ctx       context.Context
	cancel    context.CancelFunc
	release   func()
	onceClose sync.Once
}

func newLease(providerID int64, token string, ctx context.Context, cancel context.CancelFunc, release func()) *Lease {
	return &Lease{
		ProviderID: providerID,
		Token:      token,
		ctx:        ctx,
		cancel:     cancel,
		release:    release,
	}
}

// Context живёт, пока аренда действительна
func (l *Lease) Context() context.Context {
	return l.ctx
}

// Expired true если аренда была отозвана или истекла
func (l *Lease) Expired() bool {
	return l.ctx.Err() != nil
}

// Release освобождает секцию. Повторный вызов ничего не делает.
func (l *Lease) Release() {
	l.onceClose.Do(func() {
		if l.release != nil {
			l.release()
		}
		l.cancel()
	})
}
