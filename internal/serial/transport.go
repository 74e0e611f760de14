package serial

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"
)

// DefaultExcludePattern hides ports that are never serial consoles.
const DefaultExcludePattern = `[Bb]luetooth`

// Options configure an Open.
type Options struct {
	BaudRate int
}

// Conn is an open connection to a port.
type Conn interface {
	io.ReadWriteCloser
	// ID identifies the connection for status output. IDs are never reused
	// within a process.
	ID() string
}

// Transport lists and opens ports. Implementations must be safe to call
// from any goroutine; Open may block.
type Transport interface {
	ListPorts(ctx context.Context) ([]PortDescriptor, error)
	Open(ctx context.Context, name string, opts Options) (Conn, error)
}

// PortKind describes where a port comes from
type PortKind int

const (
	KindNative PortKind = iota
	KindUSB
	KindNetwork
	KindSimulated
)

func (k PortKind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindUSB:
		return "usb"
	case KindNetwork:
		return "network"
	case KindSimulated:
		return "simulated"
	default:
		return fmt.Sprintf("PortKind(%d)", int(k))
	}
}

// PortDescriptor describes one enumerable port. Descriptors are produced
// fresh on every enumeration and never cached.
type PortDescriptor struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Kind         PortKind          `json:"kind"`
	VendorID     string            `json:"vendor_id,omitempty"`
	ProductID    string            `json:"product_id,omitempty"`
	SerialNumber string            `json:"serial_number,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Label is the one-line text shown for the port in lists.
func (d PortDescriptor) Label() string {
	switch {
	case d.Description != "":
		return fmt.Sprintf("%s (%s)", d.Name, d.Description)
	case d.VendorID != "":
		return fmt.Sprintf("%s (%s:%s)", d.Name, d.VendorID, d.ProductID)
	default:
		return d.Name
	}
}

// FilterPorts drops ports whose name matches exclude and sorts the rest by
// name. A nil exclude keeps everything.
func FilterPorts(ports []PortDescriptor, exclude *regexp.Regexp) []PortDescriptor {
	out := make([]PortDescriptor, 0, len(ports))
	for _, p := range ports {
		if exclude != nil && exclude.MatchString(p.Name) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var connSeq atomic.Uint64

// nextConnID hands out process-unique connection identifiers.
func nextConnID() string {
	return strconv.FormatUint(connSeq.Add(1), 10)
}
