package stream

import (
	"errors"
	"io"
)

// InputBufferedProxy adapts a raw input stream with a FIFO read buffer,
// adding Peek and CommitRead on top of plain reads.
type InputBufferedProxy struct {
	src    InputStream
	buffer *FIFOBuffer
}

// NewInputBufferedProxy wraps src with a buffer of the given capacity.
func NewInputBufferedProxy(src InputStream, capacity int) *InputBufferedProxy {
	return &InputBufferedProxy{src: src, buffer: NewFIFOBuffer(capacity)}
}

// NewInputBufferedProxyWithData wraps src with a buffer pre-filled from data.
// Used when a protocol layer over-read past its own frame and hands the
// remainder down.
func NewInputBufferedProxyWithData(src InputStream, capacity int, data []byte) *InputBufferedProxy {
	p := NewInputBufferedProxy(src, capacity)
	p.buffer.Write(data)
	return p
}

func (p *InputBufferedProxy) Read(out []byte) (int, error) {
	if p.buffer.AvailableToRead() > 0 {
		return p.buffer.Read(out), nil
	}
	return p.src.Read(out)
}

// Peek fills out with buffered bytes without consuming them, pulling from the
// underlying stream first if the buffer is empty.
func (p *InputBufferedProxy) Peek(out []byte) (int, error) {
	if p.buffer.AvailableToRead() == 0 {
		if err := p.fill(); err != nil {
			return 0, err
		}
	}
	return p.buffer.Peek(out), nil
}

// CommitRead consumes n previously peeked bytes.
func (p *InputBufferedProxy) CommitRead(n int) int {
	return p.buffer.Skip(n)
}

func (p *InputBufferedProxy) fill() error {
	chunk := make([]byte, p.buffer.AvailableToWrite())
	if len(chunk) == 0 {
		return nil
	}
	n, err := p.src.Read(chunk)
	if n > 0 {
		p.buffer.Write(chunk[:n])
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return err
}

func (p *InputBufferedProxy) SetInputMode(mode IOMode) { p.src.SetInputMode(mode) }
func (p *InputBufferedProxy) InputMode() IOMode        { return p.src.InputMode() }

// OutputBufferedProxy adapts a raw output stream with a FIFO write buffer.
// Writes land in the buffer; Flush drains it to the underlying stream.
type OutputBufferedProxy struct {
	dst    OutputStream
	buffer *FIFOBuffer
}

// NewOutputBufferedProxy wraps dst with a buffer of the given capacity.
func NewOutputBufferedProxy(dst OutputStream, capacity int) *OutputBufferedProxy {
	return &OutputBufferedProxy{dst: dst, buffer: NewFIFOBuffer(capacity)}
}

func (p *OutputBufferedProxy) Write(data []byte) (int, error) {
	total := 0
	for len(data) > 0 {
		n := p.buffer.Write(data)
		total += n
		data = data[n:]
		if len(data) == 0 {
			break
		}
		if err := p.Flush(); err != nil {
			if errors.Is(err, ErrRetryWrite) && total > 0 {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// Flush drains the buffer into the underlying stream. In non-blocking mode a
// partial drain surfaces ErrRetryWrite; buffered bytes are kept.
func (p *OutputBufferedProxy) Flush() error {
	chunk := make([]byte, p.buffer.AvailableToRead())
	if len(chunk) == 0 {
		return nil
	}
	p.buffer.Peek(chunk)
	written := 0
	for written < len(chunk) {
		n, err := p.dst.Write(chunk[written:])
		written += n
		if err != nil {
			p.buffer.Skip(written)
			return err
		}
	}
	p.buffer.Skip(written)
	return nil
}

// Buffered returns the number of bytes waiting to be flushed.
func (p *OutputBufferedProxy) Buffered() int { return p.buffer.AvailableToRead() }

func (p *OutputBufferedProxy) SetOutputMode(mode IOMode) { p.dst.SetOutputMode(mode) }
func (p *OutputBufferedProxy) OutputMode() IOMode        { return p.dst.OutputMode() }
