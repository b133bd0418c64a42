package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Local is an in-process lock used when sessions live in memory. The TTL
// argument is accepted for interface parity and ignored.
type Local struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
}

// NewLocal constructs an in-process locker.
func NewLocal() *Local {
	return &Local{keys: make(map[string]chan struct{})}
}

// WithLock executes fn while holding the lock for key.
func (l *Local) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	for {
		l.mu.Lock()
		held, busy := l.keys[key]
		if !busy {
			released := make(chan struct{})
			l.keys[key] = released
			l.mu.Unlock()
			defer func() {
				l.mu.Lock()
				delete(l.keys, key)
				l.mu.Unlock()
				close(released)
			}()
			return fn(ctx)
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-held:
		}
	}
}
