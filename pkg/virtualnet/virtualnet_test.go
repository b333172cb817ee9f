package virtualnet

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weft-dev/weft/pkg/stream"
)

func TestSocketPairEcho(t *testing.T) {
	a, b := NewSocketPair()
	defer a.Close()
	defer b.Close()

	go func() {
		buf := make([]byte, 16)
		n, err := b.Read(buf)
		if err != nil {
			return
		}
		_, _ = b.Write(buf[:n])
	}()

	_, err := a.Write([]byte("ping"))
	require.NoError(t, err)

	reply := make([]byte, 4)
	_, err = io.ReadFull(a, reply)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(reply))
}

func TestSocketNonBlockingRead(t *testing.T) {
	a, b := NewSocketPair()
	defer a.Close()
	defer b.Close()

	a.SetInputMode(stream.NonBlocking)
	_, err := a.Read(make([]byte, 4))
	require.ErrorIs(t, err, stream.ErrRetryRead)

	_, err = b.Write([]byte("x"))
	require.NoError(t, err)

	require.NoError(t, a.WaitReadable(context.Background()))
	n, err := a.Read(make([]byte, 4))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSocketCloseGivesEOF(t *testing.T) {
	a, b := NewSocketPair()

	require.NoError(t, b.Close())
	_, err := a.Read(make([]byte, 4))
	assert.ErrorIs(t, err, io.EOF)

	_, err = a.Write([]byte("x"))
	assert.ErrorIs(t, err, stream.ErrStreamClosed)
}

func TestSocketMaxAvailableCapsTransfers(t *testing.T) {
	a, b := NewSocketPair()
	defer a.Close()
	defer b.Close()

	b.SetMaxAvailable(3, 0)
	_, err := a.Write([]byte("abcdef"))
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := b.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "read must be capped at maxRead")
}

func TestInterfaceConnectAccept(t *testing.T) {
	iface := newInterface(t.Name())
	defer iface.Close()

	type accepted struct {
		sock *Socket
		err  error
	}
	server := make(chan accepted, 1)
	go func() {
		sock, err := iface.Accept()
		server <- accepted{sock, err}
	}()

	clientSock, err := iface.Connect()
	require.NoError(t, err)

	srv := <-server
	require.NoError(t, srv.err)

	_, err = clientSock.Write([]byte("hi"))
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = io.ReadFull(srv.sock, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf))
}

func TestInterfaceConnectNonBlocking(t *testing.T) {
	iface := newInterface(t.Name())
	defer iface.Close()

	sub, err := iface.ConnectNonBlocking()
	require.NoError(t, err)

	_, ok, err := sub.SocketNonBlocking()
	require.NoError(t, err)
	assert.False(t, ok, "handshake must be pending before accept")

	go func() {
		sock, err := iface.Accept()
		if err == nil {
			defer sock.Close()
			time.Sleep(time.Millisecond)
		}
	}()

	select {
	case <-sub.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("handshake never completed")
	}
	sock, ok, err := sub.SocketNonBlocking()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, sock)
	assert.True(t, sub.Valid())
}

func TestInterfaceCloseRejectsPending(t *testing.T) {
	iface := newInterface(t.Name())

	sub, err := iface.ConnectNonBlocking()
	require.NoError(t, err)

	// Close before any acceptor runs: an acceptor would take the pending
	// submission instead of seeing the close.
	iface.Close()

	acceptErr := make(chan error, 1)
	go func() {
		_, err := iface.Accept()
		acceptErr <- err
	}()

	require.ErrorIs(t, <-acceptErr, ErrInterfaceClosed)
	_, err = sub.Socket()
	assert.ErrorIs(t, err, ErrConnectRejected)

	_, err = iface.Connect()
	assert.ErrorIs(t, err, ErrInterfaceClosed)
}

func TestObtainInterfaceRegistry(t *testing.T) {
	name := t.Name()
	defer DropInterface(name)

	first := ObtainInterface(name)
	second := ObtainInterface(name)
	if first != second {
		t.Error("registry returned distinct interfaces for one name")
	}
	if first.Name() != name {
		t.Errorf("interface name = %q", first.Name())
	}
}

func TestAcceptRaceSingleSubmission(t *testing.T) {
	iface := newInterface(t.Name())
	defer iface.Close()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := iface.Accept()
			results <- err
		}()
	}

	_, err := iface.Connect()
	require.NoError(t, err)

	// One acceptor got the submission; the other keeps waiting until close.
	select {
	case err := <-results:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no acceptor completed")
	}
	iface.Close()
	require.True(t, errors.Is(<-results, ErrInterfaceClosed))
}
