package virtualnet

import (
	"errors"
	"sync"

	"github.com/weft-dev/weft/pkg/metrics"
	"github.com/weft-dev/weft/pkg/stream"
)

var (
	// ErrInterfaceClosed is returned by handshakes on a closed interface.
	ErrInterfaceClosed = errors.New("virtualnet: interface is closed")

	// ErrConnectRejected is returned when a submission is drained without
	// being accepted.
	ErrConnectRejected = errors.New("virtualnet: connect rejected")
)

// ConnectionSubmission is a pending client handshake: the client parks on it
// until the server side accepts and supplies a socket, or the interface
// closes.
type ConnectionSubmission struct {
	done chan struct{}

	mu    sync.Mutex
	sock  *Socket
	valid bool
	set   bool
}

func newSubmission() *ConnectionSubmission {
	return &ConnectionSubmission{done: make(chan struct{})}
}

func (s *ConnectionSubmission) complete(sock *Socket) {
	s.mu.Lock()
	if s.set {
		s.mu.Unlock()
		return
	}
	s.set = true
	s.sock = sock
	s.valid = sock != nil
	s.mu.Unlock()
	close(s.done)
}

// Socket blocks until the handshake completes and returns the client socket.
func (s *ConnectionSubmission) Socket() (*Socket, error) {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid {
		return nil, ErrConnectRejected
	}
	return s.sock, nil
}

// SocketNonBlocking returns the client socket if the handshake has
// completed. ok reports completion; a completed-but-invalid submission
// yields ErrConnectRejected.
func (s *ConnectionSubmission) SocketNonBlocking() (sock *Socket, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return nil, false, nil
	}
	if !s.valid {
		return nil, true, ErrConnectRejected
	}
	return s.sock, true, nil
}

// Done returns a channel closed when the handshake completes either way.
func (s *ConnectionSubmission) Done() <-chan struct{} { return s.done }

// Valid reports whether a completed handshake produced a socket.
func (s *ConnectionSubmission) Valid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.valid
}

// Interface is a named in-process loopback. Clients submit connection
// requests; a server accepts them, creating socket pairs.
type Interface struct {
	name string

	mu          sync.Mutex
	cond        *sync.Cond
	submissions []*ConnectionSubmission
	closed      bool
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Interface{}
)

// ObtainInterface returns the interface registered under name, creating it
// on first use.
func ObtainInterface(name string) *Interface {
	registryMu.Lock()
	defer registryMu.Unlock()
	if iface, ok := registry[name]; ok {
		return iface
	}
	iface := newInterface(name)
	registry[name] = iface
	return iface
}

// DropInterface removes the interface from the registry and closes it.
func DropInterface(name string) {
	registryMu.Lock()
	iface, ok := registry[name]
	delete(registry, name)
	registryMu.Unlock()
	if ok {
		iface.Close()
	}
}

func newInterface(name string) *Interface {
	iface := &Interface{name: name}
	iface.cond = sync.NewCond(&iface.mu)
	return iface
}

// Name returns the interface name.
func (i *Interface) Name() string { return i.name }

// ConnectNonBlocking submits a connection request and returns immediately.
func (i *Interface) ConnectNonBlocking() (*ConnectionSubmission, error) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return nil, ErrInterfaceClosed
	}
	sub := newSubmission()
	i.submissions = append(i.submissions, sub)
	metrics.InterfaceConnections.WithLabelValues(i.name).Set(float64(len(i.submissions)))
	i.cond.Signal()
	i.mu.Unlock()
	return sub, nil
}

// Connect submits a connection request and blocks until a server accepts it.
func (i *Interface) Connect() (*Socket, error) {
	sub, err := i.ConnectNonBlocking()
	if err != nil {
		return nil, err
	}
	return sub.Socket()
}

// Accept blocks until a client submission arrives, builds the socket pair,
// completes the submission with the client end and returns the server end.
func (i *Interface) Accept() (*Socket, error) {
	i.mu.Lock()
	for len(i.submissions) == 0 && !i.closed {
		i.cond.Wait()
	}
	if i.closed {
		i.mu.Unlock()
		return nil, ErrInterfaceClosed
	}
	sub := i.submissions[0]
	i.submissions = i.submissions[1:]
	metrics.InterfaceConnections.WithLabelValues(i.name).Set(float64(len(i.submissions)))
	i.mu.Unlock()

	clientEnd, serverEnd := NewSocketPair()
	sub.complete(clientEnd)
	return serverEnd, nil
}

// Close rejects all pending submissions and wakes blocked acceptors.
// Established sockets are unaffected.
func (i *Interface) Close() {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	pending := i.submissions
	i.submissions = nil
	metrics.InterfaceConnections.WithLabelValues(i.name).Set(0)
	i.cond.Broadcast()
	i.mu.Unlock()

	for _, sub := range pending {
		sub.complete(nil)
	}
}

var _ stream.Stream = (*Socket)(nil)
var _ stream.Pollable = (*Socket)(nil)
