package surge

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_PostRunsTask(t *testing.T) {
	e := NewExecutor(2, nil, nil)
	defer e.Stop()

	done := make(chan struct{})
	e.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("posted task never ran")
	}
}

func TestExecutor_DispatchInlineWhenOnWorker(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()

	var onWorkerGoroutine atomic.Bool
	outerDone := make(chan struct{})

	e.Post(func() {
		// Dispatch from within a running task must run inline rather than
		// round-tripping through the task channel again.
		ran := false
		e.Dispatch(func() { ran = true })
		onWorkerGoroutine.Store(ran)
		close(outerDone)
	})

	<-outerDone
	assert.True(t, onWorkerGoroutine.Load())
}

func TestExecutor_DispatchPostsWhenNotOnWorker(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()

	done := make(chan struct{})
	e.Dispatch(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch from outside a worker never ran")
	}
}

func TestExecutor_RecoversPanicAndKeepsRunning(t *testing.T) {
	e := NewExecutor(1, nil, nil)
	defer e.Stop()

	e.Post(func() { panic("boom") })

	done := make(chan struct{})
	e.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}

func TestExecutor_WorkGuardBlocksWait(t *testing.T) {
	e := NewExecutor(1, nil, nil)

	guard := e.HoldWork()

	released := make(chan struct{})
	go func() {
		e.WaitForWork()
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("WaitForWork returned before the guard was released")
	case <-time.After(50 * time.Millisecond):
	}

	guard.Release()
	guard.Release() // idempotent

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("WaitForWork did not return after Release")
	}

	e.Stop()
	e.Wait()
}

func TestExecutor_PollOneRunsAtMostOneTask(t *testing.T) {
	// Built directly, bypassing NewExecutor, so no worker goroutines are
	// racing to drain the task channel: PollOne's own draining is what's
	// under test here.
	exec := &Executor{
		tasks:   make(chan Task, 4),
		stopped: make(chan struct{}),
		sink:    NopErrorSink{},
		logger:  slog.Default(),
	}

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		exec.tasks <- func() { count.Add(1) }
	}

	require.True(t, exec.PollOne())
	assert.EqualValues(t, 1, count.Load())

	require.True(t, exec.PollOne())
	require.True(t, exec.PollOne())
	assert.EqualValues(t, 3, count.Load())

	assert.False(t, exec.PollOne())
}
