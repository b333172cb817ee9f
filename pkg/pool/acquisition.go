package pool

import (
	"context"

	"github.com/weft-dev/weft/pkg/async"
)

// Acquisition is a cooperative acquisition in flight. A closed pool or an idle
// connection resolves it before AcquireAsync returns; a capacity expansion
// resolves it once the provider delivers; otherwise it completes when a
// connection is handed off or the pool closes.
type Acquisition struct {
	p   *Pool
	fut *async.Future[*Conn]
	w   *waiter // nil unless the acquisition joined the waiter queue
}

// Done returns a channel closed when the acquisition completes. Feed it to
// async.AwaitChan to resume a coroutine on completion.
func (a *Acquisition) Done() <-chan struct{} {
	return a.fut.Done()
}

// Result returns the acquired connection or error. Valid once Done is closed.
func (a *Acquisition) Result() (*Conn, error) {
	conn, err, _ := a.fut.Result()
	return conn, err
}

// Await blocks until the acquisition completes or ctx is cancelled.
// Cancellation removes the waiter from the queue; if a hand-off races in
// first, the late-arriving connection is released back to the pool and the
// context error is returned.
func (a *Acquisition) Await(ctx context.Context) (*Conn, error) {
	select {
	case <-a.fut.Done():
		return a.Result()
	case <-ctx.Done():
		return nil, a.cancel(ctx.Err())
	}
}

// Then schedules fn on the executor once the acquisition completes. If the
// executor has stopped by then, an acquired connection is released back.
func (a *Acquisition) Then(exec *async.Executor, fn func(*Conn, error)) {
	go func() {
		<-a.fut.Done()
		conn, err := a.Result()
		if submitErr := exec.Submit(func() { fn(conn, err) }); submitErr != nil {
			if conn != nil {
				_ = conn.Release()
			}
		}
	}()
}

func (a *Acquisition) cancel(cause error) error {
	if a.w != nil {
		a.p.mu.Lock()
		if !a.w.satisfied {
			a.w.satisfied = true
			a.p.waiters.Remove(a.w.elem)
			a.w.elem = nil
			a.p.updateGaugesLocked()
			a.p.mu.Unlock()
			a.fut.Fail(cause)
			return cause
		}
		a.p.mu.Unlock()
	}
	// A hand-off or creation already owns this future; return the connection
	// when it lands.
	go func() {
		if conn, err := a.fut.Await(context.Background()); err == nil {
			_ = conn.Release()
		}
	}()
	return cause
}
