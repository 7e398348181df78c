// ABOUTME: Pending-result handle settled exactly once through a single-use settler
// ABOUTME: State changes and continuations only ever run on the caller loop

package bridge

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ErrAlreadySettled is returned by a settler that has already been used.
var ErrAlreadySettled = errors.New("promise already settled")

// State is the lifecycle of a Promise.
type State int

const (
	Pending State = iota
	Resolved
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Promise is the caller-visible handle for one in-flight operation.
type Promise[T any] struct {
	id      string
	invoker Invoker

	mu          sync.Mutex
	state       State
	value       T
	err         error
	thens       []func()
	settlements int
	done        chan struct{}
}

// settler is the only way to settle its promise. The first Resolve or Reject
// consumes it; later calls fail with ErrAlreadySettled and change nothing.
type settler[T any] struct {
	promise *Promise[T]
	used    atomic.Bool
	logger  *slog.Logger
}

func newPromise[T any](invoker Invoker, logger *slog.Logger) (*Promise[T], *settler[T]) {
	p := &Promise[T]{
		id:      uuid.New().String(),
		invoker: invoker,
		done:    make(chan struct{}),
	}
	return p, &settler[T]{promise: p, logger: logger}
}

// Resolve marshals a success value onto the caller loop.
func (s *settler[T]) Resolve(value T) error {
	if !s.used.CompareAndSwap(false, true) {
		s.logger.Error("double settlement prevented", "promise_id", s.promise.id)
		return ErrAlreadySettled
	}
	p := s.promise
	p.invoker.InvokeAsync(func() { p.settle(Resolved, value, nil) })
	return nil
}

// Reject marshals an error onto the caller loop.
func (s *settler[T]) Reject(err error) error {
	if !s.used.CompareAndSwap(false, true) {
		s.logger.Error("double settlement prevented", "promise_id", s.promise.id)
		return ErrAlreadySettled
	}
	p := s.promise
	var zero T
	p.invoker.InvokeAsync(func() { p.settle(Rejected, zero, err) })
	return nil
}

// settle runs on the caller loop.
func (p *Promise[T]) settle(state State, value T, err error) {
	p.mu.Lock()
	p.settlements++
	p.state = state
	p.value = value
	p.err = err
	thens := p.thens
	p.thens = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range thens {
		fn()
	}
}

// ID identifies the promise in logs.
func (p *Promise[T]) ID() string {
	return p.id
}

// State reports the current state.
func (p *Promise[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed once the promise has settled on the caller loop.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Result returns the settled value or error. Before settlement it returns
// the zero value and a nil error; check Done or State first.
func (p *Promise[T]) Result() (T, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Then registers continuations that run on the caller loop once the promise
// settles. Either callback may be nil. When already settled, the matching
// callback is queued on the loop rather than called inline.
func (p *Promise[T]) Then(onResolve func(T), onReject func(error)) {
	run := func() {
		value, err := p.Result()
		if p.State() == Rejected {
			if onReject != nil {
				onReject(err)
			}
			return
		}
		if onResolve != nil {
			onResolve(value)
		}
	}

	p.mu.Lock()
	if p.state == Pending {
		p.thens = append(p.thens, run)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.invoker.InvokeAsync(run)
}
