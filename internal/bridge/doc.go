// Package bridge connects a single-goroutine caller loop to worker goroutines.
//
// # Overview
//
// The caller loop must never block. Each public operation returns a
// *Promise right away and the work runs on a worker:
//
//	p := bridge.Run(b, pool.Get(worker.Storage), func() (string, error) {
//		return st.GetDraft(ctx, key)
//	})
//	p.Then(func(text string) { ... }, func(err error) { ... })
//
// # Settlement
//
// Every promise is paired with a single-use settler. The first Resolve or
// Reject consumes it; a second attempt returns ErrAlreadySettled and has no
// effect. The settler never touches the promise directly: it queues the
// state change on the Invoker, so state transitions and continuations only
// happen on the caller loop.
//
// Independent promises may settle in any order. There is no cancellation; a
// caller that no longer cares simply ignores the result.
//
// # Loop
//
// Loop is the Invoker used by the CLI and tests. Run pumps callbacks until
// the context ends, Drain runs whatever is queued, and Await pumps until one
// promise settles.
package bridge
