package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/logging"
)

const (
	// ServiceType is the mDNS service type ser2net advertises raw TCP
	// serial streams under
	ServiceType = "_iostream._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultScanTimeout bounds a scan run while the picker is listing ports
	DefaultScanTimeout = 2 * time.Second
)

// Scanner handles mDNS bridge discovery
type Scanner struct {
	// Service is the mDNS service type to browse
	Service string

	// Timeout is the maximum time to wait for answers
	Timeout time.Duration

	Logger *zap.Logger

	// browse is replaced in tests
	browse func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// NewScanner creates a new mDNS scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Service: ServiceType,
		Timeout: DefaultScanTimeout,
	}
}

func browseZeroconf(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	if err := resolver.Browse(ctx, service, domain, entries); err != nil {
		return fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return nil
}

// Scan collects every bridge that answers before the timeout or ctx ends.
func (s *Scanner) Scan(ctx context.Context) ([]*Bridge, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)

	var mu sync.Mutex
	bridges := make([]*Bridge, 0)
	seen := make(map[string]bool)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-entries:
				if !ok {
					return
				}
				bridge := parseServiceEntry(entry)
				if bridge == nil {
					continue
				}
				mu.Lock()
				if !seen[bridge.Address()] {
					seen[bridge.Address()] = true
					bridges = append(bridges, bridge)
				}
				mu.Unlock()
			}
		}
	}()

	browse := s.browse
	if browse == nil {
		browse = browseZeroconf
	}
	service := s.Service
	if service == "" {
		service = ServiceType
	}
	if err := browse(ctx, service, ServiceDomain, entries); err != nil {
		return nil, err
	}

	<-ctx.Done()
	<-collected

	mu.Lock()
	defer mu.Unlock()
	logging.Or(s.Logger).Debug("mDNS scan finished",
		zap.String("service", service),
		zap.Int("bridges", len(bridges)),
	)
	return bridges, nil
}

func (s *Scanner) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultScanTimeout
	}
	return s.Timeout
}

// parseServiceEntry converts a zeroconf service entry to a Bridge
// Returns nil if the entry carries no usable address
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Bridge {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	// Get IP address (prefer IPv4)
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}

	// Fallback to IPv6 if no IPv4
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}

	if ip == "" {
		return nil
	}

	// Parse TXT records into metadata
	metadata := make(map[string]string)
	for _, txt := range entry.Text {
		// TXT records are in "key=value" format
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			// Key without value
			metadata[parts[0]] = ""
		}
	}

	return &Bridge{
		Instance:     entry.Instance,
		Hostname:     entry.HostName,
		IP:           ip,
		Port:         entry.Port,
		Metadata:     metadata,
		DiscoveredAt: time.Now(),
	}
}
