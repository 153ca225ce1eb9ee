package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Device is a player found by a browse scan
type Device struct {
	// Instance is the DNS-SD instance name (e.g., "Living Room")
	Instance string

	// Service is the service type it answered on (e.g., "_musc._tcp")
	Service string

	// Hostname is the mDNS hostname (e.g., "Node-2A5F.local.")
	Hostname string

	// IP is the IPv4 address, or IPv6 if the player has no IPv4 address
	IP string

	// Port is the API port (11000 for players, 11030 for hubs)
	Port int

	// Metadata contains the TXT record key/value pairs
	// Common fields: "model", "version", "mac", "be"
	Metadata map[string]string

	// DiscoveredAt is when the device answered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the device
func (d *Device) String() string {
	if model := d.GetMetadata("model"); model != "" {
		return fmt.Sprintf("%s [%s] at %s:%d", d.Instance, model, d.IP, d.Port)
	}
	return fmt.Sprintf("%s at %s:%d", d.Instance, d.IP, d.Port)
}

// Endpoint returns the base URL in the same form the resolver emits
func (d *Device) Endpoint() string {
	return NormalizeEndpoint("http://" + net.JoinHostPort(d.IP, strconv.Itoa(d.Port)))
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (d *Device) GetMetadata(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}
