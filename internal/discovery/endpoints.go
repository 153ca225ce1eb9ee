package discovery

import (
	"context"
	"net/url"

	"github.com/muurk/bluos/internal/stream"
)

// Endpoints broadcasts the resolved player base URL. The first subscriber
// activates the resolver; the last one to leave cancels it and drops the
// cached address, so the next subscriber starts a fresh discovery. A
// transport error ends every current subscription.
type Endpoints struct {
	resolver *Resolver
	hub      *stream.Hub[string]
}

// NewEndpoints wraps resolver in a shared, lazily started broadcast
func NewEndpoints(resolver *Resolver) *Endpoints {
	e := &Endpoints{resolver: resolver}
	e.hub = stream.NewHub(e.produce, stream.WithEqual(func(a, b string) bool { return a == b }))
	return e
}

func (e *Endpoints) produce(ctx context.Context, emit func(string), fail func(error)) {
	for ev := range e.resolver.Activate(ctx) {
		if ev.Err != nil {
			fail(ev.Err)
			return
		}
		emit(ev.Address)
	}
}

// Subscribe implements stream.Source
func (e *Endpoints) Subscribe() *stream.Subscription[string] {
	return e.hub.Subscribe()
}

// Latest returns the cached endpoint while discovery is active
func (e *Endpoints) Latest() (string, bool) {
	return e.hub.Latest()
}

// Requery sends one extra discovery query on the active resolution
func (e *Endpoints) Requery() {
	e.resolver.Requery()
}

// StaticEndpoint is a Source for a player configured by address. It never
// touches the network.
func StaticEndpoint(endpoint string) stream.Source[string] {
	return stream.Values(NormalizeEndpoint(endpoint))
}

// NormalizeEndpoint turns "10.0.0.5", "10.0.0.5:11000" or a full URL into the
// "http://host:port/" form discovery produces.
func NormalizeEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		u = &url.URL{Scheme: "http", Host: endpoint}
	}
	if u.Port() == "" {
		u.Host = u.Host + ":11000"
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}
