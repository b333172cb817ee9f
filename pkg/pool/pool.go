package pool

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/weft-dev/weft/pkg/async"
	"github.com/weft-dev/weft/pkg/metrics"
	"github.com/weft-dev/weft/pkg/stream"
)

// Config carries the pool construction parameters.
type Config struct {
	// MaxConnections is the hard concurrency ceiling. Must be >= 1.
	MaxConnections int

	// MaxTTL is how long an idle connection may sit in the free list before
	// the reaper destroys it. Must be > 0.
	MaxTTL time.Duration

	// ReapInterval overrides the reaper cadence. Clamped to MaxTTL/2.
	ReapInterval time.Duration

	// Name labels this pool in metrics. Defaults to "default".
	Name string

	// Logger receives invalidation failures and invariant violations.
	// Defaults to logr.Discard().
	Logger logr.Logger
}

// handle is the pool's internal record for one live connection. The raw
// stream is owned exclusively by the pool while the handle is idle and by
// the borrowing Conn while checked out. expireAt is meaningful only between
// a return and the next check-out.
type handle struct {
	raw        stream.Stream
	generation uint64
	expireAt   time.Time
}

// waiter is a pending acquisition, queued FIFO. The satisfied flag is
// guarded by the pool mutex so fulfillment and cancellation race cleanly.
type waiter struct {
	fut       *async.Future[*Conn]
	elem      *list.Element
	satisfied bool
}

// Pool lends connections produced by a Provider to concurrent borrowers,
// bounded by MaxConnections. Idle connections are reused LIFO and reaped
// after MaxTTL; exhausted acquisitions queue FIFO.
type Pool struct {
	provider Provider
	cfg      Config
	log      logr.Logger

	mu         sync.Mutex
	live       int
	free       []*handle  // LIFO: push and pop at the tail, oldest at the head
	waiters    *list.List // of *waiter, FIFO
	closed     bool
	generation uint64

	created     atomic.Uint64
	invalidated atomic.Uint64

	closeCh    chan struct{}
	reaperDone chan struct{}
	closeOnce  sync.Once
	closeErr   error
}

// Stats is a point-in-time snapshot of pool accounting.
type Stats struct {
	MaxConnections int
	Live           int
	Idle           int
	InUse          int
	Waiting        int
	Created        uint64
	Invalidated    uint64
}

// New creates a pool over the given provider and spawns its reaper.
func New(provider Provider, cfg Config) (*Pool, error) {
	if provider == nil {
		return nil, errors.New("pool: provider must not be nil")
	}
	if cfg.MaxConnections < 1 {
		return nil, errors.New("pool: MaxConnections must be >= 1")
	}
	if cfg.MaxTTL <= 0 {
		return nil, errors.New("pool: MaxTTL must be > 0")
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	interval := cfg.ReapInterval
	if interval <= 0 || interval > cfg.MaxTTL/2 {
		interval = cfg.MaxTTL / 2
	}
	if interval <= 0 {
		interval = time.Millisecond
	}

	p := &Pool{
		provider:   provider,
		cfg:        cfg,
		log:        cfg.Logger.WithName("pool").WithValues("pool", cfg.Name),
		waiters:    list.New(),
		closeCh:    make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
	go p.reap(interval)
	return p, nil
}

// Acquire borrows a connection, blocking until one is available or the pool
// is closed. The returned Conn must be released exactly once.
func (p *Pool) Acquire() (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.PoolAcquireFailures.WithLabelValues(p.cfg.Name, "closed").Inc()
		return nil, ErrPoolClosed
	}
	if h := p.popFreeLocked(); h != nil {
		p.updateGaugesLocked()
		p.mu.Unlock()
		return newConn(p, h), nil
	}
	if p.live < p.cfg.MaxConnections {
		p.live++
		p.updateGaugesLocked()
		p.mu.Unlock()
		raw, err := p.provider.Connect()
		if err != nil {
			p.connectFailed(err)
			return nil, err
		}
		return p.adopt(raw)
	}
	w := p.enqueueLocked()
	p.mu.Unlock()

	// Blocking waiters are not cancellable; close() fails the future.
	return w.fut.Await(context.Background())
}

// AcquireAsync begins a cooperative acquisition. The fast path (free handle
// or capacity headroom) never suspends the caller; otherwise the acquisition
// joins the FIFO waiter queue and completes when a connection is released or
// the pool closes.
func (p *Pool) AcquireAsync() *Acquisition {
	fut := async.NewFuture[*Conn]()
	a := &Acquisition{p: p, fut: fut}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		metrics.PoolAcquireFailures.WithLabelValues(p.cfg.Name, "closed").Inc()
		fut.Fail(ErrPoolClosed)
		return a
	}
	if h := p.popFreeLocked(); h != nil {
		p.updateGaugesLocked()
		p.mu.Unlock()
		fut.Resolve(newConn(p, h))
		return a
	}
	if p.live < p.cfg.MaxConnections {
		p.live++
		p.updateGaugesLocked()
		p.mu.Unlock()
		provFut := p.provider.ConnectAsync()
		go func() {
			raw, err := provFut.Await(context.Background())
			if err != nil {
				p.connectFailed(err)
				fut.Fail(err)
				return
			}
			conn, err := p.adopt(raw)
			if err != nil {
				fut.Fail(err)
				return
			}
			fut.Resolve(conn)
		}()
		return a
	}
	a.w = p.enqueueLocked()
	a.fut = a.w.fut
	p.mu.Unlock()
	return a
}

// adopt turns a freshly created raw connection into a borrowed Conn. The
// capacity slot was reserved before the provider call. A pool closed in the
// meantime gets no new handle: the raw connection is destroyed instead.
func (p *Pool) adopt(raw stream.Stream) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.live--
		p.updateGaugesLocked()
		p.mu.Unlock()
		p.invalidate(raw)
		metrics.PoolAcquireFailures.WithLabelValues(p.cfg.Name, "closed").Inc()
		return nil, ErrPoolClosed
	}
	gen := p.generation
	p.mu.Unlock()

	p.created.Add(1)
	metrics.PoolConnectionsCreated.WithLabelValues(p.cfg.Name).Inc()
	return newConn(p, &handle{raw: raw, generation: gen}), nil
}

// connectFailed releases the capacity slot reserved for a failed provider
// call and re-serves the head waiter, if any, with a fresh creation attempt.
func (p *Pool) connectFailed(err error) {
	p.mu.Lock()
	p.live--
	promoted := p.promoteLocked()
	p.updateGaugesLocked()
	p.mu.Unlock()
	metrics.PoolAcquireFailures.WithLabelValues(p.cfg.Name, "provider").Inc()
	p.log.V(1).Info("provider connect failed", "error", err.Error())
	if promoted != nil {
		go p.createFor(promoted)
	}
}

// createFor creates a connection on behalf of a promoted waiter. The waiter
// already owns a reserved capacity slot. On failure the error propagates to
// that waiter and the next one, if any, gets its own attempt.
func (p *Pool) createFor(w *waiter) {
	raw, err := p.provider.Connect()
	if err != nil {
		p.mu.Lock()
		p.live--
		next := p.promoteLocked()
		p.updateGaugesLocked()
		p.mu.Unlock()
		metrics.PoolAcquireFailures.WithLabelValues(p.cfg.Name, "provider").Inc()
		w.fut.Fail(err)
		if next != nil {
			go p.createFor(next)
		}
		return
	}
	conn, err := p.adopt(raw)
	if err != nil {
		w.fut.Fail(err)
		return
	}
	w.fut.Resolve(conn)
}

// release is invoked by Conn exactly once per borrow.
func (p *Pool) release(h *handle, invalidated bool) {
	now := time.Now()
	var (
		discard  stream.Stream
		handoff  *waiter
		promoted *waiter
	)

	p.mu.Lock()
	expired := !h.expireAt.IsZero() && now.After(h.expireAt)
	switch {
	case invalidated || p.closed || expired || h.generation != p.generation:
		p.live--
		discard = h.raw
		promoted = p.promoteLocked()
	case p.waiters.Len() > 0:
		handoff = p.dequeueLocked()
	default:
		h.expireAt = now.Add(p.cfg.MaxTTL)
		p.free = append(p.free, h)
	}
	p.updateGaugesLocked()
	p.mu.Unlock()

	if discard != nil {
		p.invalidate(discard)
	}
	if handoff != nil {
		handoff.fut.Resolve(newConn(p, h))
	}
	if promoted != nil {
		go p.createFor(promoted)
	}
}

// Close marks the pool closed, fails all queued waiters with ErrPoolClosed,
// destroys idle connections and shuts down the provider and the reaper.
// Connections checked out before Close keep working; their release destroys
// them instead of re-pooling. Idempotent.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.generation++
		var drained []*waiter
		for e := p.waiters.Front(); e != nil; e = e.Next() {
			w := e.Value.(*waiter)
			w.satisfied = true
			drained = append(drained, w)
		}
		p.waiters.Init()
		idle := p.free
		p.free = nil
		p.live -= len(idle)
		p.updateGaugesLocked()
		p.mu.Unlock()

		for _, w := range drained {
			w.fut.Fail(ErrPoolClosed)
		}
		for _, h := range idle {
			p.invalidate(h.raw)
		}

		close(p.closeCh)
		<-p.reaperDone
		p.closeErr = p.provider.Close()
	})
	return p.closeErr
}

// Reset destroys all idle connections and condemns every checked-out one:
// outstanding wrappers keep working but are destroyed on return instead of
// re-pooling. The pool stays open.
func (p *Pool) Reset() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.generation++
	idle := p.free
	p.free = nil
	p.live -= len(idle)
	p.updateGaugesLocked()
	p.mu.Unlock()

	for _, h := range idle {
		p.invalidate(h.raw)
	}
}

// Stats returns a snapshot of the pool accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		MaxConnections: p.cfg.MaxConnections,
		Live:           p.live,
		Idle:           len(p.free),
		InUse:          p.live - len(p.free),
		Waiting:        p.waiters.Len(),
		Created:        p.created.Load(),
		Invalidated:    p.invalidated.Load(),
	}
}

// popFreeLocked pops the most recently returned handle, so warm connections
// are reused first and cold ones age out at the head.
func (p *Pool) popFreeLocked() *handle {
	n := len(p.free)
	if n == 0 {
		return nil
	}
	h := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	return h
}

func (p *Pool) enqueueLocked() *waiter {
	w := &waiter{fut: async.NewFuture[*Conn]()}
	w.elem = p.waiters.PushBack(w)
	p.updateGaugesLocked()
	return w
}

// dequeueLocked removes and marks satisfied the head waiter.
func (p *Pool) dequeueLocked() *waiter {
	e := p.waiters.Front()
	if e == nil {
		return nil
	}
	w := p.waiters.Remove(e).(*waiter)
	w.satisfied = true
	w.elem = nil
	return w
}

// promoteLocked reserves a freed capacity slot for the head waiter. The
// caller must create a connection on the waiter's behalf outside the lock.
func (p *Pool) promoteLocked() *waiter {
	if p.closed || p.waiters.Len() == 0 || p.live >= p.cfg.MaxConnections {
		return nil
	}
	p.live++
	return p.dequeueLocked()
}

func (p *Pool) invalidate(s stream.Stream) {
	p.invalidated.Add(1)
	metrics.PoolConnectionsInvalidated.WithLabelValues(p.cfg.Name).Inc()
	if err := p.provider.Invalidate(s); err != nil {
		p.log.Error(err, "failed to invalidate connection")
	}
}

func (p *Pool) updateGaugesLocked() {
	idle := len(p.free)
	metrics.PoolConnections.WithLabelValues(p.cfg.Name, "idle").Set(float64(idle))
	metrics.PoolConnections.WithLabelValues(p.cfg.Name, "in_use").Set(float64(p.live - idle))
	metrics.PoolWaiters.WithLabelValues(p.cfg.Name).Set(float64(p.waiters.Len()))
}

// reap periodically evicts idle handles whose deadline has passed. The free
// list is pushed at the tail, so expired handles form a prefix at the head.
func (p *Pool) reap(interval time.Duration) {
	defer close(p.reaperDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.closeCh:
			return
		case now := <-ticker.C:
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				return
			}
			n := 0
			for n < len(p.free) && !p.free[n].expireAt.After(now) {
				n++
			}
			if n == 0 {
				p.mu.Unlock()
				continue
			}
			expired := make([]*handle, n)
			copy(expired, p.free[:n])
			p.free = append(p.free[:0], p.free[n:]...)
			p.live -= n
			promoted := p.promoteLocked()
			p.updateGaugesLocked()
			p.mu.Unlock()

			for _, h := range expired {
				p.invalidate(h.raw)
			}
			if promoted != nil {
				go p.createFor(promoted)
			}
		}
	}
}
