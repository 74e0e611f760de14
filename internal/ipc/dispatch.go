package ipc

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/logging"
)

// Handler receives a message's arguments spread positionally. A handler
// that needs to answer posts a new message; it returns nothing to the
// dispatcher.
type Handler func(args ...any)

// Table maps the kinds a side handles to their handlers.
type Table map[Kind]Handler

// DispatchObserver is notified of every dispatched message.
type DispatchObserver interface {
	MessageDispatched(side, name string, handled bool)
}

// Dispatcher looks up handlers by message kind. Its table is fixed at
// construction.
type Dispatcher struct {
	side     Direction
	table    Table
	logger   *zap.Logger
	observer DispatchObserver
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger that receives unhandled-message diagnostics.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver registers a dispatch observer (metrics).
func WithObserver(o DispatchObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher copies table into a dispatcher for side. Every registered
// kind must be received on that side; bootstrap kinds are never dispatched.
func NewDispatcher(side Direction, table Table, opts ...DispatcherOption) (*Dispatcher, error) {
	if side == Bootstrap {
		return nil, fmt.Errorf("%w: bootstrap messages are not dispatched", ErrWrongDirection)
	}

	d := &Dispatcher{
		side:  side,
		table: make(Table, len(table)),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = logging.Or(d.logger)

	for kind, h := range table {
		if kind.Direction() != side {
			return nil, fmt.Errorf("%w: %s is received by the %s, not the %s",
				ErrWrongDirection, kind, kind.Direction(), side)
		}
		if h == nil {
			return nil, fmt.Errorf("ipc: nil handler for %s", kind)
		}
		d.table[kind] = h
	}

	return d, nil
}

// Side returns the receiving side this dispatcher serves.
func (d *Dispatcher) Side() Direction {
	return d.side
}

// Handles reports whether kind has a handler.
func (d *Dispatcher) Handles(kind Kind) bool {
	_, ok := d.table[kind]
	return ok
}

// Dispatch invokes the handler registered for msg. Unknown names produce a
// single warning and are otherwise ignored.
func (d *Dispatcher) Dispatch(msg Message) {
	kind, _ := ParseKind(msg.Name)
	h, ok := d.table[kind]
	if d.observer != nil {
		d.observer.MessageDispatched(d.side.String(), msg.Name, ok)
	}
	if !ok {
		d.logger.Warn("Unhandled message",
			zap.String("side", d.side.String()),
			zap.String("name", msg.Name),
			zap.Int("argc", len(msg.Args)),
		)
		return
	}

	logging.LogMessage(d.logger, d.side.String(), "received", msg.Name, len(msg.Args))
	h(msg.Args...)
}
