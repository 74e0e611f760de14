package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Bridge is a network serial bridge (ser2net or similar) found on the LAN
type Bridge struct {
	// Instance is the advertised service instance (e.g., "lab-bench-1")
	Instance string

	// Hostname is the mDNS hostname (e.g., "pi-serial.local.")
	Hostname string

	// IP is the bridge address, IPv4 preferred
	IP string

	// Port is the raw TCP port carrying the serial stream
	Port int

	// Metadata contains the TXT record data
	// ser2net publishes fields such as "devicename=/dev/ttyUSB0" and "options=9600n81"
	Metadata map[string]string

	// DiscoveredAt is when the bridge answered
	DiscoveredAt time.Time
}

// String returns a human-readable string representation of the bridge
func (b *Bridge) String() string {
	return fmt.Sprintf("Serial bridge %s (%s) at %s", b.Instance, b.Hostname, b.Address())
}

// Address returns host:port suitable for net.Dial
func (b *Bridge) Address() string {
	return net.JoinHostPort(b.IP, strconv.Itoa(b.Port))
}

// PortName returns the name the serial transports open this bridge by
func (b *Bridge) PortName() string {
	return "tcp://" + b.Address()
}

// GetMetadata retrieves a metadata value by key, or returns empty string if not found
func (b *Bridge) GetMetadata(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}
