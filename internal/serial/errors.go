package serial

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the session's current state.
	ErrInvalidTransition = errors.New("serial: invalid state transition")

	// ErrSessionClosed is reported when an open completes after the session
	// was closed. The fresh connection is released, never adopted.
	ErrSessionClosed = errors.New("serial: session closed")

	// ErrUnknownPort is returned by a transport asked for a name it does not
	// serve.
	ErrUnknownPort = errors.New("serial: unknown port")
)

// ErrorKind is the category of a session failure
type ErrorKind int

const (
	// OpenFailed means the transport could not open the port
	OpenFailed ErrorKind = iota
	// DeviceDropped means an open connection failed on read
	DeviceDropped
	// WriteFailed means an open connection failed on write
	WriteFailed
)

// String returns a human-readable name for the error kind
func (k ErrorKind) String() string {
	switch k {
	case OpenFailed:
		return "Open Failed"
	case DeviceDropped:
		return "Device Dropped"
	case WriteFailed:
		return "Write Failed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// SessionError is the reason a session entered Failed
type SessionError struct {
	Kind ErrorKind // Category of failure
	Port string    // Port name the session was bound to
	Err  error     // Underlying transport error
}

// Error implements the error interface
func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Port)
}

// Unwrap returns the underlying error for error chain inspection
func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a SessionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == kind
}
