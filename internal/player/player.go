package player

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/logging"
	"github.com/muurk/bluos/internal/stream"
)

// Options tunes the sync engine. Zero values take the defaults.
type Options struct {
	// LongPollWait is the timeout hint sent with a known etag
	LongPollWait time.Duration

	// RequestTimeout bounds every request on top of LongPollWait
	RequestTimeout time.Duration

	// Retry schedule of the status loop, see PowerBackOff
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffExponent float64

	// TickInterval is how often progress is re-interpolated while playing
	TickInterval time.Duration

	// Clock drives backoff sleeps and ticks
	Clock clock.Clock

	// NewFetcher overrides the status client; tests use it
	NewFetcher func(endpoint string) Fetcher
}

func (o Options) withDefaults() Options {
	if o.LongPollWait <= 0 {
		o.LongPollWait = bluos.DefaultLongPollWait
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = bluos.DefaultTimeout
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = DefaultInitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = DefaultMaxBackoff
	}
	if o.BackoffExponent <= 0 {
		o.BackoffExponent = DefaultBackoffExponent
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Player keeps a live, normalized view of one BluOS player and sends it
// commands. Every stream is started by its first subscriber and stopped when
// the last one closes; the endpoint, status and sync streams underneath are
// shared between them.
type Player struct {
	opts      Options
	endpoints stream.Source[string]

	status   *stream.Hub[statusUpdate]
	sync     *stream.Hub[syncUpdate]
	state    *stream.Hub[State]
	playback *stream.Hub[Playback]
	volume   *stream.Hub[Volume]
}

// New creates a Player on top of an endpoint source, usually
// discovery.Endpoints or discovery.StaticEndpoint.
func New(endpoints stream.Source[string], opts Options) *Player {
	opts = opts.withDefaults()
	p := &Player{opts: opts, endpoints: endpoints}

	fetcher := opts.NewFetcher
	if fetcher == nil {
		fetcher = func(endpoint string) Fetcher { return p.client(endpoint) }
	}

	var requery func()
	if rq, ok := endpoints.(interface{ Requery() }); ok {
		requery = rq.Requery
	}

	status := &statusLoop{
		endpoints: endpoints,
		fetcher:   fetcher,
		wait:      opts.LongPollWait,
		newBackOff: func() backoff.BackOff {
			return &PowerBackOff{
				Initial:  opts.InitialBackoff,
				Max:      opts.MaxBackoff,
				Exponent: opts.BackoffExponent,
			}
		},
		sleep:   clockSleep(opts.Clock),
		requery: requery,
		log:     logging.Named("status"),
	}
	p.status = stream.NewHub(status.produce, stream.WithEqual(statusUpdatesEqual))

	sync := &syncLoop{
		status:  p.status,
		fetcher: fetcher,
		log:     logging.Named("sync-status"),
	}
	p.sync = stream.NewHub(sync.produce, stream.WithEqual(syncUpdatesEqual))

	rec := &reconciler{
		status:   p.status,
		sync:     p.sync,
		clock:    opts.Clock,
		interval: opts.TickInterval,
		log:      logging.Named("state"),
	}
	p.state = stream.NewHub(rec.produce)

	p.playback = stream.Map[State, Playback](p.state, func(s State) (Playback, bool) {
		if s.Playback == nil {
			return Playback{}, false
		}
		return *s.Playback, true
	}, stream.WithEqual(func(a, b Playback) bool {
		return State{Playback: &a}.Equal(State{Playback: &b})
	}))

	p.volume = stream.Map[State, Volume](p.state, func(s State) (Volume, bool) {
		if s.Volume == nil {
			return Volume{}, false
		}
		return *s.Volume, true
	}, stream.WithEqual(func(a, b Volume) bool {
		return State{Volume: &a}.Equal(State{Volume: &b})
	}))

	return p
}

// Endpoints is the endpoint source the player follows
func (p *Player) Endpoints() stream.Source[string] { return p.endpoints }

// State streams normalized snapshots
func (p *Player) State() stream.Source[State] { return p.state }

// Playback streams the playback part of the state, when present
func (p *Player) Playback() stream.Source[Playback] { return p.playback }

// Volume streams the volume part of the state, when present
func (p *Player) Volume() stream.Source[Volume] { return p.volume }

// Snapshot waits for the first complete state
func (p *Player) Snapshot(ctx context.Context) (State, error) {
	return stream.First(ctx, p.State())
}

// Endpoint waits for the player's base URL
func (p *Player) Endpoint(ctx context.Context) (string, error) {
	endpoint, err := stream.First(ctx, p.endpoints)
	if err != nil {
		return "", fmt.Errorf("no player endpoint: %w", err)
	}
	return endpoint, nil
}

// Client returns a client for the player, waiting for discovery if needed
func (p *Player) Client(ctx context.Context) (*bluos.Client, error) {
	endpoint, err := p.Endpoint(ctx)
	if err != nil {
		return nil, err
	}
	return p.client(endpoint), nil
}

func (p *Player) client(endpoint string) *bluos.Client {
	c := bluos.NewClient(endpoint)
	c.Timeout = p.opts.RequestTimeout
	return c
}

func (p *Player) do(ctx context.Context, name string, cmd func(*bluos.Client) error) error {
	c, err := p.Client(ctx)
	if err != nil {
		return err
	}
	logging.Named("player").Info("command", zap.String("command", name), zap.String("endpoint", c.Endpoint))
	return cmd(c)
}

// Play starts or resumes playback
func (p *Player) Play(ctx context.Context) error {
	return p.do(ctx, "play", func(c *bluos.Client) error { return c.Play(ctx) })
}

// Seek starts playback at seconds into the track
func (p *Player) Seek(ctx context.Context, seconds int) error {
	return p.do(ctx, "seek", func(c *bluos.Client) error { return c.Seek(ctx, seconds) })
}

// Pause pauses playback
func (p *Player) Pause(ctx context.Context) error {
	return p.do(ctx, "pause", func(c *bluos.Client) error { return c.Pause(ctx) })
}

// Toggle switches between playing and paused
func (p *Player) Toggle(ctx context.Context) error {
	return p.do(ctx, "toggle", func(c *bluos.Client) error { return c.Toggle(ctx) })
}

// Stop stops playback
func (p *Player) Stop(ctx context.Context) error {
	return p.do(ctx, "stop", func(c *bluos.Client) error { return c.Stop(ctx) })
}

// Next skips to the next track
func (p *Player) Next(ctx context.Context) error {
	return p.do(ctx, "next", func(c *bluos.Client) error { return c.Skip(ctx) })
}

// Previous goes back a track
func (p *Player) Previous(ctx context.Context) error {
	return p.do(ctx, "previous", func(c *bluos.Client) error { return c.Back(ctx) })
}

// Shuffle turns shuffle on or off
func (p *Player) Shuffle(ctx context.Context, on bool) error {
	return p.do(ctx, "shuffle", func(c *bluos.Client) error { return c.Shuffle(ctx, on) })
}

// Repeat sets the repeat mode
func (p *Player) Repeat(ctx context.Context, mode bluos.RepeatMode) error {
	return p.do(ctx, "repeat", func(c *bluos.Client) error { return c.Repeat(ctx, mode) })
}

// Mute mutes or unmutes
func (p *Player) Mute(ctx context.Context, muted bool) error {
	return p.do(ctx, "mute", func(c *bluos.Client) error { return c.Mute(ctx, muted) })
}

// SetVolume sets the level, 0 to 1
func (p *Player) SetVolume(ctx context.Context, level float64) error {
	return p.do(ctx, "volume", func(c *bluos.Client) error { return c.SetVolume(ctx, level) })
}

// StepVolume raises or lowers the volume by db decibels
func (p *Player) StepVolume(ctx context.Context, db float64) error {
	return p.do(ctx, "volume-step", func(c *bluos.Client) error { return c.StepVolume(ctx, db) })
}
