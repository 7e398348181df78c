// ABOUTME: Tests for the completion bridge, promises and caller loop
// ABOUTME: Validates single settlement, caller-loop delivery, panics and fail-fast rejection

package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/comm-core/internal/worker"
)

func newTestBridge(t *testing.T) (*Bridge, *Loop, *worker.Worker) {
	t.Helper()
	loop := NewLoop()
	w := worker.New("test", nil)
	t.Cleanup(w.Close)
	return New(loop, nil), loop, w
}

func await[T any](t *testing.T, loop *Loop, p *Promise[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := Await(ctx, loop, p)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "promise never settled")
	return v, err
}

func TestRun_Resolves(t *testing.T) {
	b, loop, w := newTestBridge(t)

	p := Run(b, w, func() (string, error) { return "draft", nil })
	v, err := await(t, loop, p)
	require.NoError(t, err)
	assert.Equal(t, "draft", v)
	assert.Equal(t, Resolved, p.State())
	assert.Equal(t, 1, p.settlements)
}

func TestRun_Rejects(t *testing.T) {
	b, loop, w := newTestBridge(t)
	boom := errors.New("database is locked")

	p := Run(b, w, func() (int, error) { return 0, boom })
	_, err := await(t, loop, p)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Rejected, p.State())
	assert.Equal(t, 1, p.settlements)
}

func TestRun_PanicBecomesRejection(t *testing.T) {
	b, loop, w := newTestBridge(t)

	p := Run(b, w, func() (int, error) { panic("corrupt pickle") })
	_, err := await(t, loop, p)
	var pe *worker.PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "test", pe.Worker)

	// The worker keeps serving after the panic
	p2 := Run(b, w, func() (int, error) { return 7, nil })
	v, err := await(t, loop, p2)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestRun_SettlesOnlyOnCallerLoop(t *testing.T) {
	b, loop, w := newTestBridge(t)

	finished := make(chan struct{})
	p := Run(b, w, func() (bool, error) {
		defer close(finished)
		return true, nil
	})
	<-finished

	// Let the task goroutine hand its outcome to the loop
	require.Eventually(t, func() bool {
		loop.mu.Lock()
		defer loop.mu.Unlock()
		return len(loop.queue) == 1
	}, time.Second, time.Millisecond)

	assert.Equal(t, Pending, p.State(), "work finishing must not settle the promise off-loop")

	var got bool
	p.Then(func(v bool) { got = v }, nil)
	assert.False(t, got)

	loop.Drain()
	assert.Equal(t, Resolved, p.State())
	assert.True(t, got)
}

func TestRun_NilWorkerStillDeliversThroughLoop(t *testing.T) {
	loop := NewLoop()
	b := New(loop, nil)

	p := Run[int](b, nil, func() (int, error) { return 3, nil })
	assert.Equal(t, Pending, p.State())

	assert.Equal(t, 1, loop.Drain())
	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestRun_ClosedWorkerRejects(t *testing.T) {
	loop := NewLoop()
	b := New(loop, nil)
	w := worker.New("crypto", nil)
	w.Close()

	p := Run(b, w, func() (int, error) { return 1, nil })
	_, err := await(t, loop, p)
	assert.ErrorIs(t, err, worker.ErrClosed)
}

func TestSettler_SecondSettlementRefused(t *testing.T) {
	loop := NewLoop()
	b := New(loop, nil)
	p, s := newPromise[string](b.invoker, b.logger)

	require.NoError(t, s.Resolve("first"))
	assert.ErrorIs(t, s.Reject(errors.New("late")), ErrAlreadySettled)
	assert.ErrorIs(t, s.Resolve("again"), ErrAlreadySettled)

	loop.Drain()
	v, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.Equal(t, 1, p.settlements)
}

func TestReject_FailsFastWithoutWorker(t *testing.T) {
	loop := NewLoop()
	b := New(loop, nil)
	bad := errors.New("unsupported operation: bogus")

	p := Reject[struct{}](b, bad)
	loop.Drain()

	_, err := p.Result()
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, p.settlements)
}

func TestThen_AfterSettlementQueuedOnLoop(t *testing.T) {
	loop := NewLoop()
	b := New(loop, nil)

	p := Run[int](b, nil, func() (int, error) { return 0, errors.New("nope") })
	loop.Drain()

	var rejected error
	p.Then(nil, func(err error) { rejected = err })
	assert.Nil(t, rejected, "continuation must not run inline")

	loop.Drain()
	assert.EqualError(t, rejected, "nope")
}

func TestRun_IndependentHandlesSettleOutOfOrder(t *testing.T) {
	loop := NewLoop()
	b := New(loop, nil)
	slow := worker.New("crypto", nil)
	fast := worker.New("database", nil)
	defer slow.Close()
	defer fast.Close()

	release := make(chan struct{})
	var order []string

	p1 := Run(b, slow, func() (string, error) {
		<-release
		return "slow", nil
	})
	p2 := Run(b, fast, func() (string, error) { return "fast", nil })
	p1.Then(func(v string) { order = append(order, v) }, nil)
	p2.Then(func(v string) { order = append(order, v) }, nil)

	_, err := await(t, loop, p2)
	require.NoError(t, err)
	close(release)
	_, err = await(t, loop, p1)
	require.NoError(t, err)

	assert.Equal(t, []string{"fast", "slow"}, order)
}

func TestAwait_ContextCancelled(t *testing.T) {
	loop := NewLoop()
	b := New(loop, nil)
	w := worker.New("network", nil)
	release := make(chan struct{})
	defer w.Close()
	defer close(release)

	p := Run(b, w, func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := Await(ctx, loop, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "resolved", Resolved.String())
	assert.Equal(t, "rejected", Rejected.String())
}
