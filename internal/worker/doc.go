// Package worker provides sequential executors that each own one goroutine.
//
// A Worker runs scheduled tasks one at a time, in the order they were
// scheduled, never concurrently with each other and never on the goroutine
// that scheduled them. Schedule appends to an unbounded queue and returns
// immediately, so the caller loop never blocks on a worker.
//
// A nil *Worker is the degenerate executor: ScheduleOrRun and Call run the
// task inline. Pool returns nil workers in synchronous mode, which keeps the
// same ordering contract trivially.
//
// A task that panics does not take the worker down. The worker recovers and
// keeps draining its queue; tasks that need to report the failure wrap their
// body with Guard, which turns the panic into a *PanicError.
package worker
