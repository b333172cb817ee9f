package client

import (
	"context"
	"errors"
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/weft-dev/weft/pkg/pool"
	"github.com/weft-dev/weft/pkg/stream"
	"github.com/weft-dev/weft/pkg/virtualnet"
)

// startEchoServer accepts connections until the interface closes, echoing
// every byte back.
func startEchoServer(iface *virtualnet.Interface) {
	go func() {
		for {
			sock, err := iface.Accept()
			if err != nil {
				return
			}
			go func(s *virtualnet.Socket) {
				defer s.Close()
				buf := make([]byte, 1024)
				for {
					n, err := s.Read(buf)
					if err != nil {
						return
					}
					if _, err := s.Write(buf[:n]); err != nil {
						return
					}
				}
			}(sock)
		}
	}()
}

var _ = Describe("Provider", func() {
	var iface *virtualnet.Interface

	BeforeEach(func() {
		iface = virtualnet.ObtainInterface(CurrentSpecReport().LeafNodeText)
		startEchoServer(iface)
	})

	AfterEach(func() {
		virtualnet.DropInterface(iface.Name())
	})

	It("produces blocking connections through the handshake", func() {
		provider := New(iface)
		conn, err := provider.Connect()
		Expect(err).NotTo(HaveOccurred())
		Expect(conn.InputMode()).To(Equal(stream.Blocking))
		Expect(conn.OutputMode()).To(Equal(stream.Blocking))

		_, err = conn.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		reply := make([]byte, 5)
		_, err = io.ReadFull(conn, reply)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(reply)).To(Equal("hello"))

		Expect(provider.Invalidate(conn)).To(Succeed())
	})

	It("completes asynchronous handshakes", func() {
		provider := New(iface)
		fut := provider.ConnectAsync()
		conn, err := fut.Await(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(conn).NotTo(BeNil())
		Expect(provider.Invalidate(conn)).To(Succeed())
	})

	It("applies max-available caps to produced sockets", func() {
		provider := New(iface).WithMaxAvailable(2, 0)
		conn, err := provider.Connect()
		Expect(err).NotTo(HaveOccurred())

		_, err = conn.Write([]byte("abcdef"))
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, 16)
		n, err := conn.Read(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))

		Expect(provider.Invalidate(conn)).To(Succeed())
	})

	It("fails the handshake when the interface closes", func() {
		provider := New(iface)
		iface.Close()
		_, err := provider.Connect()
		Expect(errors.Is(err, virtualnet.ErrInterfaceClosed)).To(BeTrue())
	})

	Context("backing a connection pool", func() {
		It("round-trips pooled connections end to end", func() {
			p, err := pool.New(New(iface), pool.Config{
				MaxConnections: 2,
				MaxTTL:         time.Minute,
				Name:           iface.Name(),
			})
			Expect(err).NotTo(HaveOccurred())
			defer p.Close()

			conn, err := p.Acquire()
			Expect(err).NotTo(HaveOccurred())

			_, err = conn.Write([]byte("pooled"))
			Expect(err).NotTo(HaveOccurred())
			reply := make([]byte, 6)
			_, err = io.ReadFull(conn, reply)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(reply)).To(Equal("pooled"))

			Expect(conn.Release()).To(Succeed())

			// The warm connection is reused, not re-created.
			again, err := p.Acquire()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Stats().Created).To(BeEquivalentTo(1))
			Expect(again.Release()).To(Succeed())
		})

		It("destroys pooled connections on close", func() {
			p, err := pool.New(New(iface), pool.Config{
				MaxConnections: 1,
				MaxTTL:         time.Minute,
				Name:           iface.Name() + "-close",
			})
			Expect(err).NotTo(HaveOccurred())

			conn, err := p.Acquire()
			Expect(err).NotTo(HaveOccurred())
			Expect(conn.Release()).To(Succeed())

			Expect(p.Close()).To(Succeed())

			stats := p.Stats()
			Expect(stats.Live).To(BeZero())
			Expect(stats.Invalidated).To(BeEquivalentTo(1))

			_, err = p.Acquire()
			Expect(errors.Is(err, pool.ErrPoolClosed)).To(BeTrue())
		})
	})
})
