package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFutureResolveFirstWins(t *testing.T) {
	fut := NewFuture[int]()

	if !fut.Resolve(42) {
		t.Fatal("first resolve rejected")
	}
	if fut.Resolve(7) {
		t.Error("second resolve accepted")
	}
	if fut.Fail(errors.New("late")) {
		t.Error("fail after resolve accepted")
	}

	val, err, ok := fut.Result()
	if !ok || err != nil || val != 42 {
		t.Errorf("unexpected result: val=%d err=%v ok=%v", val, err, ok)
	}
}

func TestFutureAwait(t *testing.T) {
	fut := NewFuture[string]()
	go func() {
		time.Sleep(10 * time.Millisecond)
		fut.Resolve("done")
	}()

	val, err := fut.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", val)
}

func TestFutureAwaitCancelled(t *testing.T) {
	fut := NewFuture[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fut.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	_, _, ok := fut.Result()
	assert.False(t, ok, "cancelled await must not complete the future")
}

func TestExecutorRunsSubmittedTasks(t *testing.T) {
	exec := NewExecutor(4)
	defer exec.Stop()

	var count atomic.Int64
	done := make(chan struct{})
	for i := 0; i < 100; i++ {
		require.NoError(t, exec.Submit(func() {
			if count.Add(1) == 100 {
				close(done)
			}
		}))
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not run")
	}
}

func TestExecutorSingleWorkerIsSequential(t *testing.T) {
	exec := NewExecutor(1)
	defer exec.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, exec.Submit(func() {
			order = append(order, i)
			if i == 9 {
				close(done)
			}
		}))
	}
	<-done
	for i, got := range order {
		if got != i {
			t.Fatalf("task order broken: %v", order)
		}
	}
}

func TestExecutorSubmitAfterStop(t *testing.T) {
	exec := NewExecutor(1)
	exec.Stop()
	assert.ErrorIs(t, exec.Submit(func() {}), ErrExecutorStopped)
}

func TestCoroutineWalksStates(t *testing.T) {
	exec := NewExecutor(1)
	defer exec.Stop()

	var visited []State
	co := NewCoroutine("a")
	co.Handle("a", func(ctx context.Context) Action {
		visited = append(visited, "a")
		return Yield("b")
	})
	co.Handle("b", func(ctx context.Context) Action {
		visited = append(visited, "b")
		return Wait(5*time.Millisecond, "c")
	})
	co.Handle("c", func(ctx context.Context) Action {
		visited = append(visited, "c")
		return Finish()
	})

	require.NoError(t, exec.Run(context.Background(), co))
	<-co.Done()
	require.NoError(t, co.Err())
	assert.Equal(t, []State{"a", "b", "c"}, visited)
}

func TestCoroutineAwaitsChannel(t *testing.T) {
	exec := NewExecutor(1)
	defer exec.Stop()

	gate := make(chan struct{})
	resumed := make(chan struct{})
	co := NewCoroutine("wait")
	co.Handle("wait", func(ctx context.Context) Action {
		return AwaitChan(gate, "go")
	})
	co.Handle("go", func(ctx context.Context) Action {
		close(resumed)
		return Finish()
	})

	require.NoError(t, exec.Run(context.Background(), co))
	select {
	case <-resumed:
		t.Fatal("coroutine resumed before the channel closed")
	case <-time.After(20 * time.Millisecond):
	}
	close(gate)
	<-co.Done()
	require.NoError(t, co.Err())
}

func TestCoroutineAbort(t *testing.T) {
	exec := NewExecutor(1)
	defer exec.Stop()

	boom := errors.New("boom")
	co := NewCoroutine("start")
	co.Handle("start", func(ctx context.Context) Action {
		return Abort(boom)
	})

	require.NoError(t, exec.Run(context.Background(), co))
	<-co.Done()
	assert.ErrorIs(t, co.Err(), boom)
}

func TestCoroutineUnknownState(t *testing.T) {
	exec := NewExecutor(1)
	defer exec.Stop()

	co := NewCoroutine("start")
	co.Handle("start", func(ctx context.Context) Action {
		return Yield("missing")
	})

	require.NoError(t, exec.Run(context.Background(), co))
	<-co.Done()
	assert.Error(t, co.Err())
}

func TestWaitTasksFinished(t *testing.T) {
	exec := NewExecutor(2)
	defer exec.Stop()

	var finished atomic.Int64
	for i := 0; i < 10; i++ {
		co := NewCoroutine("work")
		co.Handle("work", func(ctx context.Context) Action {
			return Wait(time.Millisecond, "done")
		})
		co.Handle("done", func(ctx context.Context) Action {
			finished.Add(1)
			return Finish()
		})
		require.NoError(t, exec.Run(context.Background(), co))
	}
	exec.WaitTasksFinished()
	assert.EqualValues(t, 10, finished.Load())
}
