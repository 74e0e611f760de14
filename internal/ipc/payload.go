package ipc

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Hello is the responder's opening request.
type Hello struct {
	// Requests names the introductions the responder wants, e.g.
	// "terminal-info".
	Requests []string
}

// Envelope encodes h as a window message.
func (h Hello) Envelope() Envelope {
	args := make([]any, len(h.Requests))
	for i, r := range h.Requests {
		args[i] = r
	}
	return Envelope{Name: KindHello.String(), Args: args}
}

// ParseHello decodes the requests carried by a hello envelope. Non-string
// entries are skipped.
func ParseHello(args []any) Hello {
	var h Hello
	for _, a := range args {
		if s, ok := a.(string); ok {
			h.Requests = append(h.Requests, s)
		}
	}
	return h
}

// TerminalInfo introduces the terminal to the picker.
type TerminalInfo struct {
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	Term            string   `json:"term,omitempty"`
	AcceptLanguages []string `json:"acceptLanguages,omitempty"`
}

// Message encodes the info as a single object argument.
func (ti TerminalInfo) Message() Message {
	return NewMessage(KindTerminalInfo, ti)
}

// ParseTerminalInfo accepts the struct itself (in-process channels) or its
// JSON object form (websocket channels).
func ParseTerminalInfo(args []any) (TerminalInfo, error) {
	if len(args) < 1 {
		return TerminalInfo{}, fmt.Errorf("%w: terminal-info needs 1 argument, got 0", ErrBadArguments)
	}

	switch v := args[0].(type) {
	case TerminalInfo:
		return v, nil
	case *TerminalInfo:
		if v == nil {
			return TerminalInfo{}, fmt.Errorf("%w: nil terminal-info", ErrBadArguments)
		}
		return *v, nil
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return TerminalInfo{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
		}
		var ti TerminalInfo
		if err := json.Unmarshal(raw, &ti); err != nil {
			return TerminalInfo{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
		}
		return ti, nil
	default:
		return TerminalInfo{}, fmt.Errorf("%w: terminal-info argument has type %T", ErrBadArguments, args[0])
	}
}

// ConnectToProfile is the picker's request to open a port.
type ConnectToProfile struct {
	PortName string
	BaudRate int
}

// Message encodes the request with the port name and rate as ordered
// arguments.
func (c ConnectToProfile) Message() Message {
	return NewMessage(KindConnectToProfile, c.PortName, c.BaudRate)
}

// ParseConnectToProfile decodes (portName, baudRate). The rate may arrive
// as a number or a decimal string.
func ParseConnectToProfile(args []any) (ConnectToProfile, error) {
	if len(args) < 2 {
		return ConnectToProfile{}, fmt.Errorf("%w: connectToProfile needs 2 arguments, got %d", ErrBadArguments, len(args))
	}

	name, ok := args[0].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return ConnectToProfile{}, fmt.Errorf("%w: port name must be a non-empty string", ErrBadArguments)
	}

	rate, err := toInt(args[1])
	if err != nil {
		return ConnectToProfile{}, fmt.Errorf("%w: baud rate: %v", ErrBadArguments, err)
	}
	if rate <= 0 {
		return ConnectToProfile{}, fmt.Errorf("%w: baud rate must be positive, got %d", ErrBadArguments, rate)
	}

	return ConnectToProfile{PortName: name, BaudRate: rate}, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int32:
		return int(n), nil
	case int64:
		return int(n), nil
	case uint32:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
