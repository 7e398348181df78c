// ABOUTME: Sequential worker executor backed by one dedicated goroutine
// ABOUTME: Runs scheduled tasks strictly in FIFO order with an unbounded, never-blocking queue

package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrClosed is returned when scheduling on a worker that has been closed.
var ErrClosed = errors.New("worker closed")

// Task is a self-contained unit of work. It must close over copies of its
// inputs, never over state owned by the scheduling goroutine.
type Task func()

// PanicError carries a panic recovered from a task.
type PanicError struct {
	Worker string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s worker: %v", e.Worker, e.Value)
}

// Worker owns one goroutine that executes tasks one at a time in submission order.
type Worker struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Task
	closed bool
	done   chan struct{}
}

// New starts a worker goroutine. Pass nil logger for default.
func New(name string, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		name:   name,
		logger: logger.With("component", "worker", "worker", name),
		done:   make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.run()
	w.logger.Debug("worker started")
	return w
}

// Name returns the worker's subsystem name.
func (w *Worker) Name() string {
	return w.name
}

// Schedule enqueues a task and returns immediately. It never blocks on the
// task itself, so it is safe to call from the caller loop.
func (w *Worker) Schedule(task Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	w.queue = append(w.queue, task)
	w.cond.Signal()
	return nil
}

// run is the worker goroutine.
func (w *Worker) run() {
	defer close(w.done)

	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.queue) == 0 {
			// Closed and drained
			w.mu.Unlock()
			return
		}
		task := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		w.execute(task)
	}
}

// execute runs one task. A panicking task is logged and the loop continues.
// Tasks that need the failure should wrap themselves with Guard.
func (w *Worker) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Warn("recovered panic in task", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}

// Close stops accepting tasks, lets already queued tasks finish and waits for
// the goroutine to exit. It is safe to call multiple times.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		w.cond.Broadcast()
	}
	w.mu.Unlock()

	<-w.done
	w.logger.Debug("worker stopped")
}

// Guard runs fn and converts a panic into a *PanicError.
func Guard(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Worker: name, Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}

// ScheduleOrRun schedules task on w, or runs it synchronously when w is nil.
// A nil worker is the degenerate executor used when no threads are configured.
func ScheduleOrRun(w *Worker, task Task) error {
	if w == nil {
		task()
		return nil
	}
	return w.Schedule(task)
}

// Call runs fn on w and waits for its result. It is meant for a task on one
// worker that needs a step on another worker before it can continue; it must
// never be called from the caller loop or from w itself.
func Call[T any](w *Worker, fn func() (T, error)) (T, error) {
	name := "inline"
	if w != nil {
		name = w.name
	}

	type outcome struct {
		value T
		err   error
	}
	ch := make(chan outcome, 1)

	err := ScheduleOrRun(w, func() {
		var value T
		err := Guard(name, func() error {
			var err error
			value, err = fn()
			return err
		})
		ch <- outcome{value: value, err: err}
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out := <-ch
	return out.value, out.err
}
