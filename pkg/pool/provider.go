package pool

import (
	"errors"

	"github.com/weft-dev/weft/pkg/async"
	"github.com/weft-dev/weft/pkg/stream"
)

var (
	// ErrPoolClosed is returned by any acquisition once the pool is closed,
	// and delivered to every waiter queued at close time.
	ErrPoolClosed = errors.New("pool: connection pool is closed")

	// ErrConnReleased is returned when a connection wrapper is released twice.
	ErrConnReleased = errors.New("pool: connection already released")
)

// Provider is the source of raw connections for a Pool. Implementations must
// be safe for concurrent use; individual connections need not be.
type Provider interface {
	// Connect produces a raw connection. It may block.
	Connect() (stream.Stream, error)

	// ConnectAsync produces a raw connection without blocking the caller.
	ConnectAsync() *async.Future[stream.Stream]

	// Invalidate disposes of a connection the pool is dropping. Best-effort;
	// the pool logs and ignores failures.
	Invalidate(s stream.Stream) error

	// Close releases provider resources. Idempotent.
	Close() error
}
