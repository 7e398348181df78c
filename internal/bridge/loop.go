// ABOUTME: Caller loop that runs marshaled callbacks on a single goroutine
// ABOUTME: InvokeAsync never blocks; Run/Drain execute callbacks in arrival order

package bridge

import (
	"context"
	"sync"
)

// Invoker marshals fn onto the caller goroutine. Implementations must not run
// fn synchronously inside InvokeAsync and must preserve call order.
type Invoker interface {
	InvokeAsync(fn func())
}

// Loop is a caller-side event loop. Callbacks queued with InvokeAsync run on
// whichever goroutine calls Run, Drain or Await, one at a time.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// InvokeAsync queues fn and wakes the loop. Safe from any goroutine.
func (l *Loop) InvokeAsync(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// Drain runs every callback queued so far, plus any queued while draining,
// and returns how many ran.
func (l *Loop) Drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Run processes callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-l.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Await pumps the loop on the current goroutine until p settles or ctx ends.
// It is for entry points such as a CLI main; code already running inside the
// loop registers a continuation with Then instead.
func Await[T any](ctx context.Context, l *Loop, p *Promise[T]) (T, error) {
	for {
		l.Drain()
		select {
		case <-p.Done():
			return p.Result()
		default:
		}

		select {
		case <-l.notify:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Ensure Loop implements Invoker.
var _ Invoker = (*Loop)(nil)
