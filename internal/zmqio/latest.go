package zmqio

import (
	"context"
	"sync"
)

// Latest is a single-slot mailbox. Put overwrites the previous value, so a
// consumer that falls behind sees only the newest message. This is how the
// pipeline gets latest-only delivery: the drain goroutine puts every
// payload and the forwarding side takes at its own pace.
//
// Next is meant for a single consumer. Multiple Getters are fine.
type Latest[T any] struct {
	mu    sync.Mutex
	val   T
	seq   uint64
	taken uint64
	ready chan struct{}
}

// NewLatest returns an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{ready: make(chan struct{}, 1)}
}

// Put stores v, replacing any value not yet taken.
func (l *Latest[T]) Put(v T) {
	l.mu.Lock()
	l.val = v
	l.seq++
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

// Get returns the most recent value. ok is false until the first Put.
func (l *Latest[T]) Get() (v T, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.seq > 0
}

// Next blocks until a value newer than the last one Next returned is
// available, or ctx is cancelled.
func (l *Latest[T]) Next(ctx context.Context) (T, error) {
	for {
		l.mu.Lock()
		if l.seq != l.taken {
			l.taken = l.seq
			v := l.val
			l.mu.Unlock()
			return v, nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-l.ready:
		}
	}
}
