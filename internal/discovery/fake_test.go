package discovery

import (
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory multicast socket
type fakeConn struct {
	in      chan []byte
	readErr chan error
	closed  chan struct{}
	once    sync.Once

	mu   sync.Mutex
	sent [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case p := <-c.in:
		return copy(b, p), &net.UDPAddr{IP: net.IPv4(10, 0, 0, 5), Port: 5353}, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakeConn) WriteTo(b []byte, _ net.Addr) (int, error) {
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) queries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *fakeConn) lastQuery(t *testing.T) *dns.Msg {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent)
	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(c.sent[len(c.sent)-1]))
	return msg
}

// dialer hands out fake connections and remembers them
type dialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	fail  error
	ch    chan *fakeConn
}

func newDialer() *dialer {
	return &dialer{ch: make(chan *fakeConn, 8)}
}

func (d *dialer) dial() (PacketConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	d.ch <- c
	return c, nil
}

func (d *dialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

var errBind = errors.New("address already in use")

func newTestResolver(d *dialer, clk clock.Clock) *Resolver {
	r := NewResolver(nil)
	r.Socket = NewSocket(d.dial)
	r.Clock = clk
	return r
}

func response(t *testing.T, answers []string, extras ...string) []byte {
	t.Helper()
	msg := new(dns.Msg)
	msg.Response = true
	msg.Authoritative = true
	for _, s := range answers {
		rr, err := dns.NewRR(s)
		require.NoError(t, err)
		msg.Answer = append(msg.Answer, rr)
	}
	for _, s := range extras {
		rr, err := dns.NewRR(s)
		require.NoError(t, err)
		msg.Extra = append(msg.Extra, rr)
	}
	b, err := msg.Pack()
	require.NoError(t, err)
	return b
}

const (
	ptrRecord = "_musc._tcp.local. 4500 IN PTR device-1._musc._tcp.local."
	srvRecord = "device-1._musc._tcp.local. 120 IN SRV 0 0 11000 host.local."
	aRecord   = "host.local. 120 IN A 10.0.0.5"
)
