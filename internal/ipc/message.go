package ipc

import "fmt"

// Message is one structured message on the picker channel. Args are
// positional and JSON-shaped: numbers decoded from the wire arrive as
// float64.
type Message struct {
	Name string `json:"name"`
	Args []any  `json:"argv"`
}

// NewMessage builds a message from positional arguments.
func NewMessage(kind Kind, args ...any) Message {
	return Message{Name: kind.String(), Args: args}
}

// clone copies the argument slice so a sent message cannot be mutated by
// its sender afterwards.
func (m Message) clone() Message {
	if m.Args == nil {
		return m
	}
	args := make([]any, len(m.Args))
	copy(args, m.Args)
	return Message{Name: m.Name, Args: args}
}

func (m Message) String() string {
	return fmt.Sprintf("%s%v", m.Name, m.Args)
}

// Kind enumerates every message name either side understands.
type Kind int

const (
	// KindUnknown is returned by ParseKind for names nobody handles.
	KindUnknown Kind = iota
	// KindHello is the responder's first window message. It lists the
	// information the responder wants from its creator.
	KindHello
	// KindChannelInit carries the transferred channel endpoint. It travels
	// on the window, never on a channel, and is never dispatched.
	KindChannelInit
	// KindInitOK acknowledges a bound channel (picker to host).
	KindInitOK
	// KindTerminalInfo introduces the terminal to the picker (host to picker).
	KindTerminalInfo
	// KindConnectToProfile asks the host to open a port (picker to host).
	KindConnectToProfile
)

var kindNames = map[Kind]string{
	KindHello:            "hello",
	KindChannelInit:      "channel-init",
	KindInitOK:           "init-ok",
	KindTerminalInfo:     "terminal-info",
	KindConnectToProfile: "connectToProfile",
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, name := range kindNames {
		m[name] = k
	}
	return m
}()

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a wire name to its Kind.
func ParseKind(name string) (Kind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// Direction says which side receives a kind.
type Direction int

const (
	// Bootstrap kinds belong to the handshake and never reach a Dispatcher.
	Bootstrap Direction = iota
	// ToHost kinds are sent by the picker and handled by the host.
	ToHost
	// ToPicker kinds are sent by the host and handled by the picker.
	ToPicker
)

func (d Direction) String() string {
	switch d {
	case Bootstrap:
		return "bootstrap"
	case ToHost:
		return "host"
	case ToPicker:
		return "picker"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Direction returns the side that receives k.
func (k Kind) Direction() Direction {
	switch k {
	case KindInitOK, KindConnectToProfile:
		return ToHost
	case KindTerminalInfo:
		return ToPicker
	default:
		return Bootstrap
	}
}
