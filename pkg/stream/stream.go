package stream

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrRetryRead is returned by a non-blocking read that would block.
	ErrRetryRead = errors.New("stream: retry read")
	// ErrRetryWrite is returned by a non-blocking write that would block.
	ErrRetryWrite = errors.New("stream: retry write")
	// ErrStreamClosed is returned for I/O on a closed stream.
	ErrStreamClosed = errors.New("stream: closed")
)

// IOMode controls whether stream operations park the caller or return a
// retry signal when no progress can be made.
type IOMode int

const (
	Blocking IOMode = iota
	NonBlocking
)

// InputStream is a readable stream with a configurable input mode.
type InputStream interface {
	io.Reader
	SetInputMode(mode IOMode)
	InputMode() IOMode
}

// OutputStream is a writable stream with a configurable output mode.
type OutputStream interface {
	io.Writer
	SetOutputMode(mode IOMode)
	OutputMode() IOMode
}

// Stream is a duplex I/O stream.
type Stream interface {
	InputStream
	OutputStream
}

// Pollable is implemented by streams that can signal readiness, so that a
// cooperative caller that hit ErrRetryRead/ErrRetryWrite knows when to retry.
type Pollable interface {
	WaitReadable(ctx context.Context) error
	WaitWritable(ctx context.Context) error
}
