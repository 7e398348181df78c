// ABOUTME: Tests for the sequential worker executor and pool
// ABOUTME: Validates FIFO order, panic survival, close draining, inline mode and idempotent init

package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_FIFOOrder(t *testing.T) {
	w := New("test", nil)
	defer w.Close()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, w.Schedule(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	wg.Wait()

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestWorker_NeverConcurrent(t *testing.T) {
	w := New("test", nil)
	defer w.Close()

	var running, maxRunning atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, w.Schedule(func() {
			defer wg.Done()
			n := running.Add(1)
			if n > maxRunning.Load() {
				maxRunning.Store(n)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestWorker_ScheduleDoesNotWaitForTask(t *testing.T) {
	w := New("test", nil)
	defer w.Close()

	release := make(chan struct{})
	finished := make(chan struct{})
	require.NoError(t, w.Schedule(func() {
		<-release
		close(finished)
	}))

	// Schedule returned while the task is still blocked
	select {
	case <-finished:
		t.Fatal("task finished before release")
	default:
	}
	close(release)
	<-finished
}

func TestWorker_SurvivesPanic(t *testing.T) {
	w := New("test", nil)
	defer w.Close()

	require.NoError(t, w.Schedule(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, w.Schedule(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stopped processing after a panic")
	}
}

func TestWorker_CloseDrainsQueue(t *testing.T) {
	w := New("test", nil)

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Schedule(func() {
			time.Sleep(time.Millisecond)
			count.Add(1)
		}))
	}
	w.Close()
	w.Close()

	assert.Equal(t, int32(10), count.Load())
	assert.ErrorIs(t, w.Schedule(func() {}), ErrClosed)
}

func TestGuard(t *testing.T) {
	err := Guard("crypto", func() error { panic("bad key") })
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "crypto", pe.Worker)
	assert.Equal(t, "bad key", pe.Value)
	assert.Contains(t, err.Error(), "panic in crypto worker")

	sentinel := errors.New("plain")
	assert.ErrorIs(t, Guard("crypto", func() error { return sentinel }), sentinel)
}

func TestScheduleOrRun_NilRunsInline(t *testing.T) {
	ran := false
	require.NoError(t, ScheduleOrRun(nil, func() { ran = true }))
	assert.True(t, ran, "nil worker must run the task before returning")
}

func TestCall(t *testing.T) {
	w := New("storage", nil)
	defer w.Close()

	v, err := Call(w, func() (string, error) { return "loaded", nil })
	require.NoError(t, err)
	assert.Equal(t, "loaded", v)

	_, err = Call(w, func() (int, error) { panic("io") })
	var pe *PanicError
	assert.ErrorAs(t, err, &pe)

	v, err = Call[string](nil, func() (string, error) { return "inline", nil })
	require.NoError(t, err)
	assert.Equal(t, "inline", v)
}

func TestCall_ClosedWorker(t *testing.T) {
	w := New("storage", nil)
	w.Close()

	_, err := Call(w, func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPool_InitIdempotent(t *testing.T) {
	p := NewPool(false, nil)
	defer p.Close()

	assert.Nil(t, p.Get(Storage), "no workers before Init")

	p.Init()
	first := map[Subsystem]*Worker{}
	for _, s := range Subsystems {
		first[s] = p.Get(s)
		require.NotNil(t, first[s])
		assert.Equal(t, string(s), first[s].Name())
	}

	p.Init()
	for _, s := range Subsystems {
		assert.Same(t, first[s], p.Get(s), "re-init must not replace workers")
	}
}

func TestPool_Synchronous(t *testing.T) {
	p := NewPool(true, nil)
	p.Init()
	defer p.Close()

	for _, s := range Subsystems {
		assert.Nil(t, p.Get(s))
	}
}

func TestPool_CloseKeepsStorageForQueuedCryptoTasks(t *testing.T) {
	p := NewPool(false, nil)
	p.Init()

	release := make(chan struct{})
	var callErr error
	require.NoError(t, p.Get(Crypto).Schedule(func() {
		<-release
		_, callErr = Call(p.Get(Storage), func() (int, error) { return 1, nil })
	}))

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	require.Eventually(t, func() bool {
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.closed
	}, time.Second, time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.NoError(t, callErr)
}
