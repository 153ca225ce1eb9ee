package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/bluos/internal/logging"
)

// ServiceNames are the DNS-SD services BluOS devices advertise: players,
// hubs, and the secondary player and zone services.
var ServiceNames = []string{
	"_musc._tcp.local",
	"_mush._tcp.local",
	"_musp._tcp.local",
	"_musz._tcp.local",
}

const (
	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultScanTimeout is the default timeout for a browse scan
	DefaultScanTimeout = 5 * time.Second

	// DefaultPort is the API port of a BluOS player
	DefaultPort = 11000
)

// Scanner lists every BluOS device on the network. Unlike Resolver, which
// stops at the first player, a scan browses for its whole timeout.
type Scanner struct {
	// Timeout is how long to browse
	Timeout time.Duration

	// Services to browse; defaults to ServiceNames
	Services []string

	// browse is zeroconf's Browse; replaced in tests
	browse func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	log *zap.Logger
}

// NewScanner creates a new scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout:  DefaultScanTimeout,
		Services: ServiceNames,
		browse:   zeroconfBrowse,
		log:      logging.Named("discovery"),
	}
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// ScanForDevices browses every service type in parallel until the timeout
// and returns the devices found, de-duplicated by endpoint and sorted by name.
func (s *Scanner) ScanForDevices(ctx context.Context) ([]*Device, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var (
		mu    sync.Mutex
		found = make(map[string]*Device)
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range s.Services {
		service := serviceType(name)
		entries := make(chan *zeroconf.ServiceEntry)

		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case entry, ok := <-entries:
					if !ok {
						return nil
					}
					device := parseServiceEntry(service, entry)
					if device == nil {
						continue
					}
					s.log.Debug("device found", zap.String("device", device.String()))
					mu.Lock()
					if _, dup := found[device.Endpoint()]; !dup {
						found[device.Endpoint()] = device
					}
					mu.Unlock()
				}
			}
		})

		g.Go(func() error {
			if err := s.browse(gctx, service, ServiceDomain, entries); err != nil {
				return fmt.Errorf("failed to browse for %s: %w", service, err)
			}
			<-gctx.Done()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	devices := make([]*Device, 0, len(found))
	for _, d := range found {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Instance != devices[j].Instance {
			return devices[i].Instance < devices[j].Instance
		}
		return devices[i].IP < devices[j].IP
	})
	return devices, nil
}

// serviceType turns "_musc._tcp.local" into the "_musc._tcp" form zeroconf wants
func serviceType(name string) string {
	name = strings.TrimSuffix(name, ".")
	return strings.TrimSuffix(name, ".local")
}

// parseServiceEntry converts a zeroconf service entry to a Device.
// Returns nil if the entry has no usable address.
func parseServiceEntry(service string, entry *zeroconf.ServiceEntry) *Device {
	if entry == nil {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	if len(entry.AddrIPv4) > 0 {
		ip = entry.AddrIPv4[0].String()
	} else if len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	port := entry.Port
	if port == 0 {
		port = DefaultPort
	}

	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}

	return &Device{
		Instance:     entry.Instance,
		Service:      service,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}

// ScanForDevices is a convenience function to scan with a custom timeout
func ScanForDevices(ctx context.Context, timeout time.Duration) ([]*Device, error) {
	scanner := NewScanner()
	scanner.Timeout = timeout
	return scanner.ScanForDevices(ctx)
}
