// Package thrift adapts pooled connections to the Apache Thrift transport
// interface, so thrift clients can run RPC over any pool-managed stream.
package thrift

import (
	"context"
	"errors"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/weft-dev/weft/pkg/pool"
)

// ErrTransportClosed is returned for I/O on a transport that is not open.
var ErrTransportClosed = errors.New("thrift: transport is not open")

// PooledTransport is a thrift.TTransport backed by a connection pool. Open
// acquires a connection; Close releases it back. One transport holds at most
// one borrowed connection at a time.
type PooledTransport struct {
	pool *pool.Pool
	conn *pool.Conn
}

// NewPooledTransport creates a closed transport over the given pool.
func NewPooledTransport(p *pool.Pool) *PooledTransport {
	return &PooledTransport{pool: p}
}

// Open acquires a connection from the pool.
func (t *PooledTransport) Open() error {
	if t.conn != nil {
		return thrift.NewTTransportException(thrift.ALREADY_OPEN, "transport already open")
	}
	conn, err := t.pool.Acquire()
	if err != nil {
		return thrift.NewTTransportExceptionFromError(err)
	}
	t.conn = conn
	return nil
}

// IsOpen reports whether a connection is held.
func (t *PooledTransport) IsOpen() bool {
	return t.conn != nil
}

// Close releases the held connection back to the pool.
func (t *PooledTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	conn := t.conn
	t.conn = nil
	return conn.Release()
}

// Invalidate marks the held connection unsound; the pool destroys it on
// Close instead of re-pooling.
func (t *PooledTransport) Invalidate() {
	if t.conn != nil {
		t.conn.Invalidate()
	}
}

func (t *PooledTransport) Read(p []byte) (int, error) {
	if t.conn == nil {
		return 0, thrift.NewTTransportExceptionFromError(ErrTransportClosed)
	}
	return t.conn.Read(p)
}

func (t *PooledTransport) Write(p []byte) (int, error) {
	if t.conn == nil {
		return 0, thrift.NewTTransportExceptionFromError(ErrTransportClosed)
	}
	return t.conn.Write(p)
}

// Flush is a no-op: pooled streams write through.
func (t *PooledTransport) Flush(ctx context.Context) error {
	return nil
}

// RemainingBytes is unknown for stream transports.
func (t *PooledTransport) RemainingBytes() uint64 {
	const maxSize = ^uint64(0)
	return maxSize
}

// TransportFactory builds PooledTransports over one shared pool. It
// satisfies thrift.TTransportFactory; the inner transport argument is
// ignored because the pool is the connection source.
type TransportFactory struct {
	pool *pool.Pool
}

// NewTransportFactory creates a factory over the given pool.
func NewTransportFactory(p *pool.Pool) *TransportFactory {
	return &TransportFactory{pool: p}
}

// GetTransport returns a fresh closed PooledTransport.
func (f *TransportFactory) GetTransport(_ thrift.TTransport) (thrift.TTransport, error) {
	return NewPooledTransport(f.pool), nil
}

var _ thrift.TTransport = (*PooledTransport)(nil)
var _ thrift.TTransportFactory = (*TransportFactory)(nil)
