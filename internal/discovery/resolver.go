package discovery

import (
	"context"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/logging"
	"github.com/muurk/bluos/internal/metrics"
)

// DefaultQueryInterval is how often PTR queries repeat until a player answers
const DefaultQueryInterval = 500 * time.Millisecond

// Event is one message from an active resolution: either a player address or
// the transport failure that ended it.
type Event struct {
	Address string
	Err     error
}

// Resolver finds a player by querying PTR records for Services and following
// the PTR -> SRV -> A chain in the answers.
type Resolver struct {
	// Services are the DNS-SD service names to query (e.g., "_musc._tcp.local")
	Services []string

	// Interval between queries while nothing has resolved
	Interval time.Duration

	// Socket is the shared multicast socket
	Socket *Socket

	// Clock drives the query ticker
	Clock clock.Clock

	log     *zap.Logger
	requery chan struct{}
}

// NewResolver creates a resolver on the shared multicast socket
func NewResolver(services []string) *Resolver {
	if len(services) == 0 {
		services = ServiceNames
	}
	return &Resolver{
		Services: services,
		Interval: DefaultQueryInterval,
		Socket:   SharedSocket(),
		Clock:    clock.New(),
		log:      logging.Named("discovery"),
		requery:  make(chan struct{}, 1),
	}
}

// Requery asks an active resolution to send one more query now. Used when a
// player stops answering, in case it moved to a new address. Without an
// active resolution the request waits for the next one.
func (r *Resolver) Requery() {
	select {
	case r.requery <- struct{}{}:
	default:
	}
}

// Activate starts a resolution. It queries immediately and then every
// Interval until a complete chain arrives, and keeps listening afterwards so
// a changed address is reported too. The channel closes after a transport
// error or once ctx is done; cancelling ctx releases the socket.
func (r *Resolver) Activate(ctx context.Context) <-chan Event {
	events := make(chan Event)
	go r.run(ctx, events)
	return events
}

func (r *Resolver) run(ctx context.Context, events chan<- Event) {
	defer close(events)

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	query, err := buildQuery(r.Services)
	if err != nil {
		emit(Event{Err: fmt.Errorf("build query: %w", err)})
		return
	}

	lease, err := r.Socket.Acquire()
	if err != nil {
		r.log.Warn("discovery failed", zap.Error(err))
		emit(Event{Err: err})
		return
	}
	defer lease.Release()

	send := func() error {
		metrics.DiscoveryQueries.Inc()
		r.log.Debug("query", zap.Strings("services", r.Services))
		return lease.Send(query)
	}

	if err := send(); err != nil {
		r.log.Warn("discovery failed", zap.Error(err))
		emit(Event{Err: err})
		return
	}

	ticker := r.Clock.Ticker(r.Interval)
	defer ticker.Stop()
	tick := ticker.C

	chain := newChain(r.Services)
	var last string

	for {
		select {
		case <-ctx.Done():
			return

		case <-tick:
			if err := send(); err != nil {
				r.log.Warn("discovery failed", zap.Error(err))
				emit(Event{Err: err})
				return
			}

		case <-r.requery:
			if err := send(); err != nil {
				r.log.Warn("discovery failed", zap.Error(err))
				emit(Event{Err: err})
				return
			}

		case err := <-lease.Err():
			emit(Event{Err: err})
			return

		case packet := <-lease.Packets():
			msg := new(dns.Msg)
			if err := msg.Unpack(packet); err != nil {
				r.log.Debug("ignoring malformed packet", zap.Error(err))
				continue
			}
			if !msg.Response {
				continue
			}

			chain.add(msg)
			addr := chain.resolve()
			if addr == "" || addr == last {
				continue
			}

			if tick != nil {
				ticker.Stop()
				tick = nil
			}
			last = addr
			metrics.DiscoveryResolutions.Inc()
			r.log.Info("player resolved", zap.String("endpoint", addr))
			if !emit(Event{Address: addr}) {
				return
			}
		}
	}
}

// buildQuery packs one message with a PTR question per service name
func buildQuery(services []string) ([]byte, error) {
	msg := new(dns.Msg)
	msg.Id = 0
	msg.RecursionDesired = false
	for _, name := range services {
		msg.Question = append(msg.Question, dns.Question{
			Name:   dns.Fqdn(name),
			Qtype:  dns.TypePTR,
			Qclass: dns.ClassINET,
		})
	}
	return msg.Pack()
}

type srvTarget struct {
	target string
	port   uint16
}

// chain accumulates PTR, SRV and A records across the responses of one
// resolution. Names are compared in canonical form. A record with TTL 0 is a
// goodbye and removes what it names.
type chain struct {
	services []string
	ptr      map[string][]string
	srv      map[string]srvTarget
	a        map[string]net.IP
}

func newChain(services []string) *chain {
	c := &chain{
		ptr: make(map[string][]string),
		srv: make(map[string]srvTarget),
		a:   make(map[string]net.IP),
	}
	for _, s := range services {
		c.services = append(c.services, dns.CanonicalName(s))
	}
	return c
}

func (c *chain) add(msg *dns.Msg) {
	records := make([]dns.RR, 0, len(msg.Answer)+len(msg.Extra))
	records = append(records, msg.Answer...)
	records = append(records, msg.Extra...)

	for _, rr := range records {
		hdr := rr.Header()
		if hdr.Class&^(1<<15) != dns.ClassINET {
			continue
		}
		name := dns.CanonicalName(hdr.Name)
		goodbye := hdr.Ttl == 0

		switch rr := rr.(type) {
		case *dns.PTR:
			if !slices.Contains(c.services, name) {
				continue
			}
			target := dns.CanonicalName(rr.Ptr)
			if goodbye {
				c.ptr[name] = slices.DeleteFunc(c.ptr[name], func(v string) bool { return v == target })
			} else if !slices.Contains(c.ptr[name], target) {
				c.ptr[name] = append(c.ptr[name], target)
			}
		case *dns.SRV:
			if goodbye {
				delete(c.srv, name)
			} else {
				c.srv[name] = srvTarget{target: dns.CanonicalName(rr.Target), port: rr.Port}
			}
		case *dns.A:
			if goodbye {
				delete(c.a, name)
			} else {
				c.a[name] = rr.A
			}
		}
	}
}

// resolve returns the address of the first complete chain, checking services
// in the order they are watched and instances in the order they appeared.
func (c *chain) resolve() string {
	for _, service := range c.services {
		for _, instance := range c.ptr[service] {
			srv, ok := c.srv[instance]
			if !ok {
				continue
			}
			ip, ok := c.a[srv.target]
			if !ok {
				continue
			}
			return fmt.Sprintf("http://%s:%d/", ip.String(), srv.port)
		}
	}
	return ""
}
