package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/weft-dev/weft/pkg/async"
	"github.com/weft-dev/weft/pkg/stream"
)

// stubStream is a do-nothing connection with an identity, so tests can
// observe which underlying connection a wrapper carries.
type stubStream struct {
	id      int64
	inMode  stream.IOMode
	outMode stream.IOMode
}

func (s *stubStream) Read(p []byte) (int, error)  { return len(p), nil }
func (s *stubStream) Write(p []byte) (int, error) { return len(p), nil }

func (s *stubStream) SetInputMode(mode stream.IOMode)  { s.inMode = mode }
func (s *stubStream) InputMode() stream.IOMode         { return s.inMode }
func (s *stubStream) SetOutputMode(mode stream.IOMode) { s.outMode = mode }
func (s *stubStream) OutputMode() stream.IOMode        { return s.outMode }

// stubProvider counts creations and invalidations. failOn makes the n-th
// connect attempt fail (1-based); zero disables failures. created counts
// successful creations only.
type stubProvider struct {
	attempts    atomic.Int64
	created     atomic.Int64
	invalidated atomic.Int64
	closed      atomic.Int64
	failOn      int64
}

func (p *stubProvider) Connect() (stream.Stream, error) {
	n := p.attempts.Add(1)
	if p.failOn != 0 && n == p.failOn {
		return nil, fmt.Errorf("stub: connection %d refused", n)
	}
	return &stubStream{id: p.created.Add(1)}, nil
}

func (p *stubProvider) ConnectAsync() *async.Future[stream.Stream] {
	fut := async.NewFuture[stream.Stream]()
	go func() {
		raw, err := p.Connect()
		if err != nil {
			fut.Fail(err)
			return
		}
		fut.Resolve(raw)
	}()
	return fut
}

func (p *stubProvider) Invalidate(s stream.Stream) error {
	p.invalidated.Add(1)
	return nil
}

func (p *stubProvider) Close() error {
	p.closed.Add(1)
	return nil
}
