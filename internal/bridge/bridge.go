// ABOUTME: Async completion bridge between the caller loop and worker goroutines
// ABOUTME: Runs work on a named worker and marshals exactly one outcome back to the caller

package bridge

import (
	"fmt"
	"log/slog"

	"github.com/2389/comm-core/internal/worker"
)

// Bridge ties promises to the caller loop they settle on.
type Bridge struct {
	invoker Invoker
	logger  *slog.Logger
}

// New creates a bridge that settles promises through invoker. Pass nil logger for default.
func New(invoker Invoker, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		invoker: invoker,
		logger:  logger.With("component", "bridge"),
	}
}

// Run creates a pending promise, schedules work on w and returns immediately.
// A nil w runs work inline; settlement is still delivered through the loop.
// Errors and panics from work become a rejection; nothing crosses back to
// the caller except through the promise.
func Run[T any](b *Bridge, w *worker.Worker, work func() (T, error)) *Promise[T] {
	p, s := newPromise[T](b.invoker, b.logger)

	name := "inline"
	if w != nil {
		name = w.Name()
	}
	b.logger.Debug("scheduling task", "promise_id", p.ID(), "worker", name)

	err := worker.ScheduleOrRun(w, func() {
		var value T
		err := worker.Guard(name, func() error {
			var err error
			value, err = work()
			return err
		})
		if err != nil {
			b.logger.Debug("task failed", "promise_id", p.ID(), "worker", name, "error", err)
			_ = s.Reject(err)
			return
		}
		_ = s.Resolve(value)
	})
	if err != nil {
		_ = s.Reject(fmt.Errorf("scheduling on %s worker: %w", name, err))
	}
	return p
}

// Reject returns a promise that fails with err without touching any worker.
// Used for input that is rejected before a task is built.
func Reject[T any](b *Bridge, err error) *Promise[T] {
	p, s := newPromise[T](b.invoker, b.logger)
	b.logger.Debug("rejecting before scheduling", "promise_id", p.ID(), "error", err)
	_ = s.Reject(err)
	return p
}
