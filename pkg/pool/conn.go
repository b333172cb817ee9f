package pool

import (
	"context"
	"sync/atomic"

	"github.com/weft-dev/weft/pkg/stream"
)

// Conn is a scoped borrow of a pooled connection. It exposes the underlying
// stream surface by delegation and returns the connection to the pool on
// Release. A Conn is owned by the goroutine that acquired it; it is not safe
// for concurrent use.
type Conn struct {
	pool        *Pool
	h           *handle
	invalidated atomic.Bool
	released    atomic.Bool
}

func newConn(p *Pool, h *handle) *Conn {
	return &Conn{pool: p, h: h}
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.released.Load() {
		return 0, ErrConnReleased
	}
	return c.h.raw.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.released.Load() {
		return 0, ErrConnReleased
	}
	return c.h.raw.Write(p)
}

func (c *Conn) SetInputMode(mode stream.IOMode)  { c.h.raw.SetInputMode(mode) }
func (c *Conn) InputMode() stream.IOMode         { return c.h.raw.InputMode() }
func (c *Conn) SetOutputMode(mode stream.IOMode) { c.h.raw.SetOutputMode(mode) }
func (c *Conn) OutputMode() stream.IOMode        { return c.h.raw.OutputMode() }

// WaitReadable delegates the cooperative readiness hint when the underlying
// stream supports it; otherwise the caller may retry immediately.
func (c *Conn) WaitReadable(ctx context.Context) error {
	if pb, ok := c.h.raw.(stream.Pollable); ok {
		return pb.WaitReadable(ctx)
	}
	return nil
}

// WaitWritable delegates the cooperative readiness hint when the underlying
// stream supports it; otherwise the caller may retry immediately.
func (c *Conn) WaitWritable(ctx context.Context) error {
	if pb, ok := c.h.raw.(stream.Pollable); ok {
		return pb.WaitWritable(ctx)
	}
	return nil
}

// Invalidate marks the borrow as unsound. The connection is destroyed on
// release instead of being returned to the pool.
func (c *Conn) Invalidate() {
	c.invalidated.Store(true)
}

// Release returns the connection to the pool. Exactly-once: a second call
// reports ErrConnReleased and leaves the pool untouched.
func (c *Conn) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		c.pool.log.Error(ErrConnReleased, "double release of pooled connection")
		return ErrConnReleased
	}
	c.pool.release(c.h, c.invalidated.Load())
	return nil
}

// Close is an alias for Release so a Conn satisfies io.ReadWriteCloser.
func (c *Conn) Close() error {
	return c.Release()
}
