package serial

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"testing"
	"time"

	bugserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/beagle-term/beagle/internal/discovery"
)

func TestFilterPortsHidesBluetooth(t *testing.T) {
	ports := []PortDescriptor{
		{Name: "/dev/cu.Bluetooth-Incoming-Port"},
		{Name: "/dev/ttyUSB0"},
		{Name: "/dev/tty.bluetooth-modem"},
	}

	got := FilterPorts(ports, regexp.MustCompile(DefaultExcludePattern))

	if len(got) != 1 || got[0].Name != "/dev/ttyUSB0" {
		t.Errorf("FilterPorts() = %v, want only /dev/ttyUSB0", got)
	}
}

func TestFilterPortsSortsAndKeepsAllWithoutPattern(t *testing.T) {
	ports := []PortDescriptor{{Name: "/dev/ttyUSB1"}, {Name: "/dev/ttyACM0"}, {Name: "/dev/ttyUSB0"}}

	got := FilterPorts(ports, nil)

	want := []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1"}
	if len(got) != len(want) {
		t.Fatalf("FilterPorts() returned %d ports, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Errorf("FilterPorts()[%d] = %s, want %s", i, got[i].Name, want[i])
		}
	}
}

func TestPortDescriptorLabel(t *testing.T) {
	tests := []struct {
		name string
		desc PortDescriptor
		want string
	}{
		{"description", PortDescriptor{Name: "/dev/ttyUSB0", Description: "FT232R"}, "/dev/ttyUSB0 (FT232R)"},
		{"usb ids", PortDescriptor{Name: "/dev/ttyACM0", VendorID: "2341", ProductID: "0043"}, "/dev/ttyACM0 (2341:0043)"},
		{"bare", PortDescriptor{Name: "COM3"}, "COM3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.Label(); got != tt.want {
				t.Errorf("Label() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConnIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := nextConnID()
		if seen[id] {
			t.Fatalf("connection ID %s handed out twice", id)
		}
		seen[id] = true
	}
}

func TestDeviceTransportListPorts(t *testing.T) {
	tr := NewDeviceTransport(nil)
	tr.list = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A50285BI", Product: "FT232R USB UART"},
			nil,
			{Name: ""},
		}, nil
	}

	ports, err := tr.ListPorts(context.Background())
	if err != nil {
		t.Fatalf("ListPorts() error = %v", err)
	}
	if len(ports) != 2 {
		t.Fatalf("ListPorts() returned %d ports, want 2", len(ports))
	}
	if ports[0].Kind != KindNative {
		t.Errorf("ports[0].Kind = %v, want native", ports[0].Kind)
	}
	usb := ports[1]
	if usb.Kind != KindUSB || usb.VendorID != "0403" || usb.ProductID != "6001" || usb.SerialNumber != "A50285BI" {
		t.Errorf("usb port = %+v", usb)
	}
	if usb.Description != "FT232R USB UART" {
		t.Errorf("usb.Description = %q", usb.Description)
	}
}

func TestDeviceTransportOpenFailure(t *testing.T) {
	tr := NewDeviceTransport(nil)
	var gotMode *bugserial.Mode
	tr.open = func(name string, mode *bugserial.Mode) (bugserial.Port, error) {
		gotMode = mode
		return nil, errors.New("serial port busy")
	}

	_, err := tr.Open(context.Background(), "/dev/ttyUSB0", Options{BaudRate: 115200})
	if err == nil {
		t.Fatal("Open() error = nil, want failure")
	}
	if gotMode == nil || gotMode.BaudRate != 115200 || gotMode.DataBits != 8 {
		t.Errorf("mode = %+v, want 115200 8N1", gotMode)
	}
}

func TestDeviceTransportRespectsCancelledContext(t *testing.T) {
	tr := NewDeviceTransport(nil)
	tr.list = func() ([]*enumerator.PortDetails, error) {
		t.Error("enumerated after cancellation")
		return nil, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tr.ListPorts(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ListPorts() error = %v, want context.Canceled", err)
	}
}

func TestNetworkTransportRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = io.Copy(c, c)
	}()

	tr := NewNetworkTransport(nil, nil)
	conn, err := tr.Open(context.Background(), NetworkPrefix+ln.Addr().String(), Options{BaudRate: 9600})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("ID() is empty")
	}
	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	buf := make([]byte, 4)
	if nc, ok := conn.(*netConn); ok {
		_ = nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	}
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("echo = %q, want ping", buf)
	}
}

func TestNetworkTransportRejectsNames(t *testing.T) {
	tr := NewNetworkTransport(nil, nil)
	for _, name := range []string{"/dev/ttyUSB0", "tcp://", "tcp://no-port"} {
		if _, err := tr.Open(context.Background(), name, Options{BaudRate: 9600}); !errors.Is(err, ErrUnknownPort) {
			t.Errorf("Open(%q) error = %v, want ErrUnknownPort", name, err)
		}
	}
}

type fakeScanner struct {
	bridges []*discovery.Bridge
}

func (f fakeScanner) Scan(context.Context) ([]*discovery.Bridge, error) {
	return f.bridges, nil
}

func TestNetworkTransportListsBridges(t *testing.T) {
	tr := NewNetworkTransport(fakeScanner{bridges: []*discovery.Bridge{
		{Instance: "bench", IP: "10.0.0.7", Port: 3001, Metadata: map[string]string{"devicename": "/dev/ttyUSB0"}},
	}}, nil)

	ports, err := tr.ListPorts(context.Background())
	if err != nil {
		t.Fatalf("ListPorts() error = %v", err)
	}
	if len(ports) != 1 {
		t.Fatalf("ListPorts() returned %d ports, want 1", len(ports))
	}
	if ports[0].Name != "tcp://10.0.0.7:3001" || ports[0].Kind != KindNetwork {
		t.Errorf("port = %+v", ports[0])
	}
	if ports[0].Description != "bench /dev/ttyUSB0" {
		t.Errorf("Description = %q, want %q", ports[0].Description, "bench /dev/ttyUSB0")
	}
}

func TestMultiTransportRoutesByPrefix(t *testing.T) {
	sim := &fakeTransport{ports: []PortDescriptor{{Name: "sim:sh"}}}
	dev := &fakeTransport{ports: []PortDescriptor{{Name: "/dev/ttyUSB0"}}}
	m := NewMultiTransport(nil,
		Route{Prefix: SimulatorPrefix, Transport: sim},
		Route{Transport: dev},
	)

	ports, err := m.ListPorts(context.Background())
	if err != nil {
		t.Fatalf("ListPorts() error = %v", err)
	}
	if len(ports) != 2 {
		t.Errorf("ListPorts() returned %d ports, want 2", len(ports))
	}

	if _, err := m.Open(context.Background(), "sim:sh", Options{}); err != nil {
		t.Fatalf("Open(sim:sh) error = %v", err)
	}
	if _, err := m.Open(context.Background(), "/dev/ttyUSB0", Options{}); err != nil {
		t.Fatalf("Open(/dev/ttyUSB0) error = %v", err)
	}
	if sim.Opens() != 1 || dev.Opens() != 1 {
		t.Errorf("opens: sim = %d, dev = %d, want 1, 1", sim.Opens(), dev.Opens())
	}
}

func TestMultiTransportUnknownName(t *testing.T) {
	m := NewMultiTransport(nil, Route{Prefix: SimulatorPrefix, Transport: &fakeTransport{}})
	if _, err := m.Open(context.Background(), "/dev/ttyUSB0", Options{}); !errors.Is(err, ErrUnknownPort) {
		t.Errorf("Open() error = %v, want ErrUnknownPort", err)
	}
}

func TestSimulatorTransportNames(t *testing.T) {
	tr := NewSimulatorTransport("/bin/bash", nil)
	if tr.PortName() != "sim:bash" {
		t.Errorf("PortName() = %q, want sim:bash", tr.PortName())
	}
	ports, err := tr.ListPorts(context.Background())
	if err != nil || len(ports) != 1 || ports[0].Kind != KindSimulated {
		t.Fatalf("ListPorts() = %v, %v", ports, err)
	}
	if _, err := tr.Open(context.Background(), "sim:zsh", Options{}); !errors.Is(err, ErrUnknownPort) {
		t.Errorf("Open(sim:zsh) error = %v, want ErrUnknownPort", err)
	}
}
