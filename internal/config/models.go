package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/discovery"
	"github.com/muurk/bluos/internal/player"
	"github.com/muurk/bluos/internal/stream"
)

// CurrentVersion is the config file format version
const CurrentVersion = 1

// Config represents the entire user configuration file
type Config struct {
	Version int `yaml:"version"`

	// Endpoint pins a player address and skips discovery
	Endpoint string `yaml:"endpoint,omitempty"`

	// LogLevel is used when neither --log-level nor BLUOS_LOG_LEVEL is set
	LogLevel string `yaml:"log_level,omitempty"`

	// Devices maps nicknames to player addresses, usable with --device
	Devices map[string]*Device `yaml:"devices,omitempty"`

	Discovery Discovery `yaml:"discovery"`
	Poll      Poll      `yaml:"poll"`
	State     State     `yaml:"state"`
	Bridge    Bridge    `yaml:"bridge"`
}

// Device is a user-named player
type Device struct {
	Endpoint string `yaml:"endpoint"`
	Note     string `yaml:"note,omitempty"`
}

// Discovery tunes the multicast resolver
type Discovery struct {
	Services      []string      `yaml:"services,omitempty"`
	QueryInterval time.Duration `yaml:"query_interval"`
	ScanTimeout   time.Duration `yaml:"scan_timeout"`
}

// Poll tunes the status long-poll loop
type Poll struct {
	LongPollWait    time.Duration `yaml:"long_poll_wait"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	InitialBackoff  time.Duration `yaml:"initial_backoff"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
	BackoffExponent float64       `yaml:"backoff_exponent"`
}

// State tunes progress interpolation
type State struct {
	TickInterval time.Duration `yaml:"tick_interval"`
}

// Bridge configures bluos-bridge
type Bridge struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	PushInterval time.Duration `yaml:"push_interval"`

	// Serve HTTPS when both are set
	TLSCert string `yaml:"tls_cert,omitempty"`
	TLSKey  string `yaml:"tls_key,omitempty"`
}

// Default returns a Config with every setting at its built-in value
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Devices: make(map[string]*Device),
		Discovery: Discovery{
			Services:      append([]string(nil), discovery.ServiceNames...),
			QueryInterval: discovery.DefaultQueryInterval,
			ScanTimeout:   5 * time.Second,
		},
		Poll: Poll{
			LongPollWait:    bluos.DefaultLongPollWait,
			RequestTimeout:  bluos.DefaultTimeout,
			InitialBackoff:  player.DefaultInitialBackoff,
			MaxBackoff:      player.DefaultMaxBackoff,
			BackoffExponent: player.DefaultBackoffExponent,
		},
		State: State{
			TickInterval: player.DefaultTickInterval,
		},
		Bridge: Bridge{
			Host:         "127.0.0.1",
			Port:         8711,
			PushInterval: 250 * time.Millisecond,
		},
	}
}

// fillDefaults sets every unset value to its default
func (c *Config) fillDefaults() {
	d := Default()
	if len(c.Discovery.Services) == 0 {
		c.Discovery.Services = d.Discovery.Services
	}
	if c.Discovery.QueryInterval == 0 {
		c.Discovery.QueryInterval = d.Discovery.QueryInterval
	}
	if c.Discovery.ScanTimeout == 0 {
		c.Discovery.ScanTimeout = d.Discovery.ScanTimeout
	}
	if c.Poll.LongPollWait == 0 {
		c.Poll.LongPollWait = d.Poll.LongPollWait
	}
	if c.Poll.RequestTimeout == 0 {
		c.Poll.RequestTimeout = d.Poll.RequestTimeout
	}
	if c.Poll.InitialBackoff == 0 {
		c.Poll.InitialBackoff = d.Poll.InitialBackoff
	}
	if c.Poll.MaxBackoff == 0 {
		c.Poll.MaxBackoff = d.Poll.MaxBackoff
	}
	if c.Poll.BackoffExponent == 0 {
		c.Poll.BackoffExponent = d.Poll.BackoffExponent
	}
	if c.State.TickInterval == 0 {
		c.State.TickInterval = d.State.TickInterval
	}
	if c.Bridge.Host == "" {
		c.Bridge.Host = d.Bridge.Host
	}
	if c.Bridge.Port == 0 {
		c.Bridge.Port = d.Bridge.Port
	}
	if c.Bridge.PushInterval == 0 {
		c.Bridge.PushInterval = d.Bridge.PushInterval
	}
	if c.Devices == nil {
		c.Devices = make(map[string]*Device)
	}
}

var logLevels = []string{"", "debug", "info", "warn", "warning", "error"}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs error
	add := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf(format, args...))
	}

	if c.Version != CurrentVersion {
		add("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Endpoint != "" {
		if err := validateEndpoint(c.Endpoint); err != nil {
			add("endpoint: %w", err)
		}
	}
	if !slices.Contains(logLevels, strings.ToLower(c.LogLevel)) {
		add("log_level: unknown level %q", c.LogLevel)
	}
	for name, d := range c.Devices {
		if d == nil || d.Endpoint == "" {
			add("devices.%s: endpoint is required", name)
			continue
		}
		if err := validateEndpoint(d.Endpoint); err != nil {
			add("devices.%s: %w", name, err)
		}
	}

	for _, s := range c.Discovery.Services {
		if !strings.HasPrefix(s, "_") || !strings.HasSuffix(s, ".local") {
			add("discovery.services: %q is not a DNS-SD service name like _musc._tcp.local", s)
		}
	}
	if c.Discovery.QueryInterval <= 0 {
		add("discovery.query_interval must be positive")
	}
	if c.Discovery.ScanTimeout <= 0 {
		add("discovery.scan_timeout must be positive")
	}

	if c.Poll.LongPollWait <= 0 {
		add("poll.long_poll_wait must be positive")
	}
	if c.Poll.RequestTimeout <= 0 {
		add("poll.request_timeout must be positive")
	}
	if c.Poll.InitialBackoff <= 0 {
		add("poll.initial_backoff must be positive")
	}
	if c.Poll.MaxBackoff < c.Poll.InitialBackoff {
		add("poll.max_backoff (%s) is below poll.initial_backoff (%s)", c.Poll.MaxBackoff, c.Poll.InitialBackoff)
	}
	if c.Poll.BackoffExponent < 1 {
		add("poll.backoff_exponent must be at least 1, got %v", c.Poll.BackoffExponent)
	}

	if c.State.TickInterval <= 0 {
		add("state.tick_interval must be positive")
	}

	if c.Bridge.Port < 1 || c.Bridge.Port > 65535 {
		add("bridge.port %d out of range", c.Bridge.Port)
	}
	if c.Bridge.PushInterval < 0 {
		add("bridge.push_interval must not be negative")
	}
	if (c.Bridge.TLSCert == "") != (c.Bridge.TLSKey == "") {
		add("bridge.tls_cert and bridge.tls_key must be set together")
	}

	return errs
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(discovery.NormalizeEndpoint(endpoint))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("missing host in %q", endpoint)
	}
	return nil
}

// ResolveDevice turns a --device value into an address. Nicknames from
// Devices are looked up first; anything else is taken as an address. The
// configured Endpoint is used when name is empty.
func (c *Config) ResolveDevice(name string) string {
	if name == "" {
		return c.Endpoint
	}
	if d, ok := c.Devices[name]; ok && d != nil {
		return d.Endpoint
	}
	return name
}

// PlayerOptions maps the poll and state settings onto the sync engine
func (c *Config) PlayerOptions() player.Options {
	return player.Options{
		LongPollWait:    c.Poll.LongPollWait,
		RequestTimeout:  c.Poll.RequestTimeout,
		InitialBackoff:  c.Poll.InitialBackoff,
		MaxBackoff:      c.Poll.MaxBackoff,
		BackoffExponent: c.Poll.BackoffExponent,
		TickInterval:    c.State.TickInterval,
	}
}

// NewResolver builds a multicast resolver with the discovery settings
func (c *Config) NewResolver() *discovery.Resolver {
	r := discovery.NewResolver(c.Discovery.Services)
	r.Interval = c.Discovery.QueryInterval
	return r
}

// Endpoints picks the endpoint source for a --device value: a fixed
// address when one resolves, multicast discovery otherwise.
func (c *Config) Endpoints(device string) stream.Source[string] {
	if addr := c.ResolveDevice(device); addr != "" {
		return discovery.StaticEndpoint(addr)
	}
	return discovery.NewEndpoints(c.NewResolver())
}

// NewPlayer builds the sync engine for a --device value
func (c *Config) NewPlayer(device string) *player.Player {
	return player.New(c.Endpoints(device), c.PlayerOptions())
}
