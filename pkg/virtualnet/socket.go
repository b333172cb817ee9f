package virtualnet

import (
	"context"
	"io"
	"sync"

	"github.com/weft-dev/weft/pkg/stream"
)

// pipeCapacity is the per-direction buffer size of a socket pair.
const pipeCapacity = 32 * 1024

// pipe is one direction of a socket pair: a FIFO buffer shared by the
// writing side and the reading side.
type pipe struct {
	mu     sync.Mutex
	fifo   *stream.FIFOBuffer
	closed bool

	readable  chan struct{} // closed and swapped when data arrives
	writable  chan struct{} // closed and swapped when space frees
	readCond  *sync.Cond
	writeCond *sync.Cond
}

func newPipe() *pipe {
	p := &pipe{
		fifo:     stream.NewFIFOBuffer(pipeCapacity),
		readable: make(chan struct{}),
		writable: make(chan struct{}),
	}
	p.readCond = sync.NewCond(&p.mu)
	p.writeCond = sync.NewCond(&p.mu)
	return p
}

func (p *pipe) notifyReadableLocked() {
	p.readCond.Broadcast()
	close(p.readable)
	p.readable = make(chan struct{})
}

func (p *pipe) notifyWritableLocked() {
	p.writeCond.Broadcast()
	close(p.writable)
	p.writable = make(chan struct{})
}

func (p *pipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.notifyReadableLocked()
	p.notifyWritableLocked()
}

func (p *pipe) read(buf []byte, mode stream.IOMode) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.fifo.AvailableToRead() == 0 {
		if p.closed {
			return 0, io.EOF
		}
		if mode == stream.NonBlocking {
			return 0, stream.ErrRetryRead
		}
		p.readCond.Wait()
	}
	n := p.fifo.Read(buf)
	p.notifyWritableLocked()
	return n, nil
}

func (p *pipe) write(buf []byte, mode stream.IOMode) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.fifo.AvailableToWrite() == 0 {
		if p.closed {
			return 0, stream.ErrStreamClosed
		}
		if mode == stream.NonBlocking {
			return 0, stream.ErrRetryWrite
		}
		p.writeCond.Wait()
	}
	if p.closed {
		return 0, stream.ErrStreamClosed
	}
	n := p.fifo.Write(buf)
	p.notifyReadableLocked()
	return n, nil
}

func (p *pipe) waitReadable(ctx context.Context) error {
	p.mu.Lock()
	if p.fifo.AvailableToRead() > 0 || p.closed {
		p.mu.Unlock()
		return nil
	}
	ch := p.readable
	p.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipe) waitWritable(ctx context.Context) error {
	p.mu.Lock()
	if p.fifo.AvailableToWrite() > 0 || p.closed {
		p.mu.Unlock()
		return nil
	}
	ch := p.writable
	p.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Socket is one end of an in-process duplex connection. It implements
// stream.Stream and stream.Pollable. The zero value is not usable; sockets
// come in pairs from NewSocketPair or from an Interface handshake.
type Socket struct {
	in  *pipe
	out *pipe

	mu       sync.Mutex
	inMode   stream.IOMode
	outMode  stream.IOMode
	maxRead  int
	maxWrite int
}

// NewSocketPair creates two connected sockets: bytes written to one are read
// from the other.
func NewSocketPair() (*Socket, *Socket) {
	a := newPipe()
	b := newPipe()
	return &Socket{in: a, out: b}, &Socket{in: b, out: a}
}

func (s *Socket) Read(buf []byte) (int, error) {
	mode, capped := s.capRead(len(buf))
	return s.in.read(buf[:capped], mode)
}

func (s *Socket) Write(buf []byte) (int, error) {
	mode, capped := s.capWrite(len(buf))
	n, err := s.out.write(buf[:capped], mode)
	if err != nil {
		return n, err
	}
	// Blocking callers expect a full write; loop over the cap.
	for n < len(buf) && mode == stream.Blocking {
		var m int
		_, capped = s.capWrite(len(buf) - n)
		m, err = s.out.write(buf[n:n+capped], mode)
		n += m
		if err != nil {
			break
		}
	}
	return n, err
}

func (s *Socket) capRead(n int) (stream.IOMode, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxRead > 0 && n > s.maxRead {
		n = s.maxRead
	}
	return s.inMode, n
}

func (s *Socket) capWrite(n int) (stream.IOMode, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.maxWrite > 0 && n > s.maxWrite {
		n = s.maxWrite
	}
	return s.outMode, n
}

func (s *Socket) SetInputMode(mode stream.IOMode) {
	s.mu.Lock()
	s.inMode = mode
	s.mu.Unlock()
}

func (s *Socket) InputMode() stream.IOMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inMode
}

func (s *Socket) SetOutputMode(mode stream.IOMode) {
	s.mu.Lock()
	s.outMode = mode
	s.mu.Unlock()
}

func (s *Socket) OutputMode() stream.IOMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outMode
}

// SetMaxAvailable caps how many bytes a single read or write may transfer.
// Zero or negative means uncapped. Used to exercise partial-I/O paths.
func (s *Socket) SetMaxAvailable(read, write int) {
	s.mu.Lock()
	s.maxRead = read
	s.maxWrite = write
	s.mu.Unlock()
}

func (s *Socket) WaitReadable(ctx context.Context) error {
	return s.in.waitReadable(ctx)
}

func (s *Socket) WaitWritable(ctx context.Context) error {
	return s.out.waitWritable(ctx)
}

// Close shuts down both directions. The peer observes EOF on read and
// ErrStreamClosed on write.
func (s *Socket) Close() error {
	s.in.close()
	s.out.close()
	return nil
}
