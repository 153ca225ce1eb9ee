package discovery

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/bluos/internal/logging"
)

// mdnsGroup is the IPv4 mDNS multicast group
var mdnsGroup = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// maxPacketSize is the largest mDNS message we accept (RFC 6762 §17)
const maxPacketSize = 9000

// PacketConn is the part of a UDP socket the resolver needs
type PacketConn interface {
	ReadFrom(b []byte) (int, net.Addr, error)
	WriteTo(b []byte, addr net.Addr) (int, error)
	Close() error
}

// DialFunc opens the multicast socket
type DialFunc func() (PacketConn, error)

// ListenMulticast binds 224.0.0.251:5353 and joins the group on every
// multicast-capable interface that is up.
func ListenMulticast() (PacketConn, error) {
	conn, err := net.ListenMulticastUDP("udp4", nil, mdnsGroup)
	if err != nil {
		return nil, err
	}

	p := ipv4.NewPacketConn(conn)
	var errs error
	errs = multierr.Append(errs, p.SetMulticastTTL(255))
	errs = multierr.Append(errs, p.SetMulticastLoopback(true))

	ifaces, err := net.Interfaces()
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := p.JoinGroup(&iface, &net.UDPAddr{IP: mdnsGroup.IP}); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("join %s: %w", iface.Name, err))
		}
	}
	if errs != nil {
		// The default-interface membership from ListenMulticastUDP still
		// works; the extra joins are best effort.
		logging.Named("discovery").Debug("multicast socket options", zap.Error(errs))
	}

	return conn, nil
}

// Socket is a reference-counted multicast socket shared by every resolution
// in the process. The first Acquire opens it, the last Release closes it,
// and a single read loop fans packets out to all leases.
type Socket struct {
	dial DialFunc
	log  *zap.Logger

	mu     sync.Mutex
	refs   int
	conn   PacketConn
	leases map[*Lease]struct{}
	done   chan struct{}
}

// NewSocket creates a socket that opens connections with dial
func NewSocket(dial DialFunc) *Socket {
	return &Socket{
		dial:   dial,
		log:    logging.Named("discovery"),
		leases: make(map[*Lease]struct{}),
	}
}

var (
	sharedOnce   sync.Once
	sharedSocket *Socket
)

// SharedSocket returns the process-wide socket on the real mDNS group
func SharedSocket() *Socket {
	sharedOnce.Do(func() {
		sharedSocket = NewSocket(ListenMulticast)
	})
	return sharedSocket
}

// Refs returns the number of outstanding leases
func (s *Socket) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Acquire takes a lease on the socket, opening it if needed
func (s *Socket) Acquire() (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := s.dial()
		if err != nil {
			return nil, transportError("bind", err)
		}
		s.conn = conn
		s.done = make(chan struct{})
		go s.readLoop(conn, s.done)
		s.log.Debug("multicast socket opened")
	}

	l := &Lease{
		socket:  s,
		conn:    s.conn,
		packets: make(chan []byte, 16),
		errc:    make(chan error, 1),
	}
	s.leases[l] = struct{}{}
	s.refs++
	return l, nil
}

func (s *Socket) release(l *Lease) {
	s.mu.Lock()
	if _, ok := s.leases[l]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.leases, l)
	s.refs--

	var conn PacketConn
	var done chan struct{}
	if s.refs == 0 && s.conn != nil {
		conn, done = s.conn, s.done
		s.conn, s.done = nil, nil
	}
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.log.Debug("close multicast socket", zap.Error(err))
		}
		<-done
		s.log.Debug("multicast socket closed")
	}
}

func (s *Socket) readLoop(conn PacketConn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			s.fail(conn, err)
			return
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])
		logging.LogRawBytes("mdns packet", packet)

		s.mu.Lock()
		for l := range s.leases {
			if l.conn != conn {
				continue
			}
			select {
			case l.packets <- packet:
			default:
				// mDNS is lossy; a slow reader loses packets, not the loop
			}
		}
		s.mu.Unlock()
	}
}

// fail reports a read error to every lease of conn, unless conn was closed
// by the last Release.
func (s *Socket) fail(conn PacketConn, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != conn {
		return
	}
	if errors.Is(err, net.ErrClosed) {
		err = errors.New("socket closed unexpectedly")
	}

	s.log.Warn("multicast socket failed", zap.Error(err))
	terr := transportError("receive", err)
	for l := range s.leases {
		if l.conn == conn {
			select {
			case l.errc <- terr:
			default:
			}
		}
	}

	// Outstanding leases still hold their refs; the next Acquire redials.
	_ = conn.Close()
	s.conn = nil
}

// Lease is one resolution's hold on the shared socket
type Lease struct {
	socket  *Socket
	conn    PacketConn
	packets chan []byte
	errc    chan error
	once    sync.Once
}

// Packets delivers every datagram received on the socket
func (l *Lease) Packets() <-chan []byte {
	return l.packets
}

// Err delivers at most one transport failure
func (l *Lease) Err() <-chan error {
	return l.errc
}

// Send writes one message to the mDNS group
func (l *Lease) Send(msg []byte) error {
	if _, err := l.conn.WriteTo(msg, mdnsGroup); err != nil {
		return transportError("send", err)
	}
	return nil
}

// Release gives the lease back. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.socket.release(l)
	})
}
