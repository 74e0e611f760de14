package serial

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/discovery"
	"github.com/beagle-term/beagle/internal/logging"
)

// NetworkPrefix names ports reached over raw TCP, such as ser2net bridges.
const NetworkPrefix = "tcp://"

// DefaultDialTimeout bounds connecting to a bridge.
const DefaultDialTimeout = 5 * time.Second

// BridgeScanner finds network serial bridges.
type BridgeScanner interface {
	Scan(ctx context.Context) ([]*discovery.Bridge, error)
}

// NetworkTransport opens "tcp://host:port" ports. With a scanner it also
// lists the bridges advertised on the local network.
type NetworkTransport struct {
	scanner BridgeScanner
	dialer  net.Dialer
	logger  *zap.Logger
}

// NewNetworkTransport returns a transport for network bridges. scanner may
// be nil, in which case ListPorts lists nothing and ports must be named
// explicitly.
func NewNetworkTransport(scanner BridgeScanner, logger *zap.Logger) *NetworkTransport {
	return &NetworkTransport{
		scanner: scanner,
		dialer:  net.Dialer{Timeout: DefaultDialTimeout},
		logger:  logging.Or(logger),
	}
}

func (t *NetworkTransport) ListPorts(ctx context.Context) ([]PortDescriptor, error) {
	if t.scanner == nil {
		return nil, nil
	}
	bridges, err := t.scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}

	ports := make([]PortDescriptor, 0, len(bridges))
	for _, b := range bridges {
		desc := PortDescriptor{
			Name:        b.PortName(),
			Description: b.Instance,
			Kind:        KindNetwork,
			Metadata:    b.Metadata,
		}
		if dev := b.GetMetadata("devicename"); dev != "" {
			desc.Description = strings.TrimSpace(b.Instance + " " + dev)
		}
		ports = append(ports, desc)
	}
	return ports, nil
}

func (t *NetworkTransport) Open(ctx context.Context, name string, opts Options) (Conn, error) {
	addr, ok := strings.CutPrefix(name, NetworkPrefix)
	if !ok || addr == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPort, name)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownPort, name, err)
	}

	c, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", describeDialError(err), addr, err)
	}
	t.logger.Debug("Connected to serial bridge",
		zap.String("addr", addr),
		zap.Int("baud", opts.BaudRate),
	)
	return &netConn{Conn: c, id: nextConnID()}, nil
}

type netConn struct {
	net.Conn
	id string
}

func (c *netConn) ID() string { return c.id }

// describeDialError names the way a dial failed.
func describeDialError(err error) string {
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return "timed out connecting to"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS resolution failed for"
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return "connection refused by"
	case errors.Is(err, syscall.EHOSTUNREACH):
		return "host unreachable:"
	case errors.Is(err, syscall.ENETUNREACH):
		return "network unreachable:"
	}
	return "failed to connect to"
}
