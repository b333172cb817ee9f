// Package client provides a pool.Provider that connects through a virtual
// in-process interface.
package client

import (
	"io"

	"github.com/weft-dev/weft/pkg/async"
	"github.com/weft-dev/weft/pkg/pool"
	"github.com/weft-dev/weft/pkg/stream"
	"github.com/weft-dev/weft/pkg/virtualnet"
)

// Provider produces connections by performing the connect handshake against
// a virtual interface. Connections are handed out in blocking mode with the
// configured max-available caps applied.
type Provider struct {
	iface    *virtualnet.Interface
	maxRead  int
	maxWrite int
}

// New creates a provider over the given interface.
func New(iface *virtualnet.Interface) *Provider {
	return &Provider{iface: iface}
}

// WithMaxAvailable caps single-operation transfer sizes on produced sockets.
func (p *Provider) WithMaxAvailable(read, write int) *Provider {
	p.maxRead = read
	p.maxWrite = write
	return p
}

func (p *Provider) configure(sock *virtualnet.Socket) stream.Stream {
	sock.SetInputMode(stream.Blocking)
	sock.SetOutputMode(stream.Blocking)
	sock.SetMaxAvailable(p.maxRead, p.maxWrite)
	return sock
}

// Connect performs a blocking handshake.
func (p *Provider) Connect() (stream.Stream, error) {
	sock, err := p.iface.Connect()
	if err != nil {
		return nil, err
	}
	return p.configure(sock), nil
}

// ConnectAsync submits the handshake and completes the future once the
// server accepts or the interface closes.
func (p *Provider) ConnectAsync() *async.Future[stream.Stream] {
	fut := async.NewFuture[stream.Stream]()
	sub, err := p.iface.ConnectNonBlocking()
	if err != nil {
		fut.Fail(err)
		return fut
	}
	go func() {
		<-sub.Done()
		sock, _, err := sub.SocketNonBlocking()
		if err != nil {
			fut.Fail(err)
			return
		}
		fut.Resolve(p.configure(sock))
	}()
	return fut
}

// Invalidate closes the dropped connection.
func (p *Provider) Invalidate(s stream.Stream) error {
	if closer, ok := s.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Close is a no-op: the interface lifetime belongs to whoever obtained it.
func (p *Provider) Close() error {
	return nil
}

var _ pool.Provider = (*Provider)(nil)
