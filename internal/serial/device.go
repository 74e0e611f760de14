package serial

import (
	"context"
	"fmt"

	bugserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/logging"
)

// DeviceTransport reaches serial hardware attached to this machine.
type DeviceTransport struct {
	logger *zap.Logger

	// replaced in tests
	list func() ([]*enumerator.PortDetails, error)
	open func(name string, mode *bugserial.Mode) (bugserial.Port, error)
}

// NewDeviceTransport returns a transport backed by the operating system's
// serial ports.
func NewDeviceTransport(logger *zap.Logger) *DeviceTransport {
	return &DeviceTransport{
		logger: logging.Or(logger),
		list:   enumerator.GetDetailedPortsList,
		open:   bugserial.Open,
	}
}

// ListPorts enumerates local ports, with USB identity where available.
func (t *DeviceTransport) ListPorts(ctx context.Context) ([]PortDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	details, err := t.list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]PortDescriptor, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		desc := PortDescriptor{Name: d.Name, Kind: KindNative}
		if d.IsUSB {
			desc.Kind = KindUSB
			desc.VendorID = d.VID
			desc.ProductID = d.PID
			desc.SerialNumber = d.SerialNumber
			desc.Description = d.Product
		}
		ports = append(ports, desc)
	}
	t.logger.Debug("Enumerated serial ports", zap.Int("count", len(ports)))
	return ports, nil
}

// Open opens name at 8N1 with the requested rate.
func (t *DeviceTransport) Open(ctx context.Context, name string, opts Options) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mode := &bugserial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   bugserial.NoParity,
		StopBits: bugserial.OneStopBit,
	}
	port, err := t.open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return &deviceConn{Port: port, id: nextConnID()}, nil
}

type deviceConn struct {
	bugserial.Port
	id string
}

func (c *deviceConn) ID() string { return c.id }
