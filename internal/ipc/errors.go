package ipc

import "errors"

var (
	// ErrHandshakeIncomplete is returned when a message is posted before the
	// handshake has bound a channel.
	ErrHandshakeIncomplete = errors.New("ipc: handshake incomplete")

	// ErrPortClosed is returned when posting on a closed port.
	ErrPortClosed = errors.New("ipc: port closed")

	// ErrBadArguments wraps payload decoding failures.
	ErrBadArguments = errors.New("ipc: bad message arguments")

	// ErrWrongDirection is returned when a dispatch table registers a kind
	// the side never receives.
	ErrWrongDirection = errors.New("ipc: message kind not received on this side")

	// ErrUnresolvableEndpoint is returned by a Resolver that cannot turn a
	// transferred endpoint into a Port.
	ErrUnresolvableEndpoint = errors.New("ipc: unresolvable channel endpoint")
)
