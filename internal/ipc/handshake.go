package ipc

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/logging"
)

// DefaultGrace is how long an initiator waits for init-ok before treating
// the peer as ready anyway.
const DefaultGrace = 500 * time.Millisecond

// Envelope is a bootstrap message on a surface window. Transfer carries the
// channel endpoint of a channel-init: a *LocalPort in process, a URL string
// across processes.
type Envelope struct {
	Name     string `json:"name"`
	Args     []any  `json:"argv,omitempty"`
	Transfer any    `json:"transfer,omitempty"`
}

// Window is the creator's view of a surface it spawned.
type Window interface {
	// PostWindowMessage delivers a bootstrap envelope to the surface.
	PostWindowMessage(env Envelope) error
	// OpenChannel creates a duplex channel and returns the creator's end plus
	// a transferable handle for the other end.
	OpenChannel() (Port, any, error)
}

// FrameWindow is a surface's view of its creator.
type FrameWindow interface {
	PostWindowMessage(env Envelope) error
}

// Resolver turns a transferred endpoint into a bound Port.
type Resolver func(transfer any) (Port, error)

// ResolveLocal accepts endpoints that already are ports.
func ResolveLocal(transfer any) (Port, error) {
	if p, ok := transfer.(Port); ok && p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnresolvableEndpoint, transfer)
}

// InitiatorState is the creator side of the handshake.
type InitiatorState int

const (
	AwaitingHello InitiatorState = iota
	AwaitingAck
	Ready
	InitiatorClosed
)

func (s InitiatorState) String() string {
	switch s {
	case AwaitingHello:
		return "awaiting-hello"
	case AwaitingAck:
		return "awaiting-ack"
	case Ready:
		return "ready"
	case InitiatorClosed:
		return "closed"
	default:
		return fmt.Sprintf("InitiatorState(%d)", int(s))
	}
}

// InitiatorConfig wires an Initiator to its collaborators.
type InitiatorConfig struct {
	Loop       *eventloop.Loop
	Window     Window
	Dispatcher *Dispatcher
	// Grace bounds the wait for init-ok. Zero means DefaultGrace.
	Grace time.Duration
	// Info produces the terminal-info sent once the channel is bound.
	Info func() TerminalInfo
	// OnReady fires once, on init-ok or when the grace delay expires.
	OnReady func()
	Logger  *zap.Logger
}

// Initiator drives the handshake from the surface's creator: it waits for
// hello, transfers a channel endpoint, then waits for init-ok.
type Initiator struct {
	cfg    InitiatorConfig
	logger *zap.Logger
	state  InitiatorState
	port   Port
	timer  *eventloop.Timer
}

// NewInitiator validates cfg. Methods must be called on cfg.Loop.
func NewInitiator(cfg InitiatorConfig) (*Initiator, error) {
	if cfg.Loop == nil || cfg.Window == nil || cfg.Dispatcher == nil {
		return nil, errors.New("ipc: initiator needs a loop, a window and a dispatcher")
	}
	if cfg.Dispatcher.Side() != ToHost {
		return nil, fmt.Errorf("%w: initiator dispatches host messages", ErrWrongDirection)
	}
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	return &Initiator{cfg: cfg, logger: logging.Or(cfg.Logger)}, nil
}

// State returns the current handshake state.
func (i *Initiator) State() InitiatorState {
	return i.state
}

// HandleWindowMessage processes a bootstrap envelope from the surface.
func (i *Initiator) HandleWindowMessage(env Envelope) {
	if i.state != AwaitingHello {
		i.logger.Debug("Ignoring window message after handshake",
			zap.String("name", env.Name),
			zap.Stringer("state", i.state),
		)
		return
	}
	if env.Name != KindHello.String() {
		i.logger.Warn("Unexpected window message", zap.String("name", env.Name))
		return
	}

	hello := ParseHello(env.Args)
	i.logger.Debug("Surface said hello", zap.Strings("requests", hello.Requests))

	port, transfer, err := i.cfg.Window.OpenChannel()
	if err != nil {
		i.logger.Error("Failed to open picker channel", zap.Error(err))
		return
	}
	if err := i.cfg.Window.PostWindowMessage(Envelope{Name: KindChannelInit.String(), Transfer: transfer}); err != nil {
		_ = port.Close()
		i.logger.Error("Failed to transfer picker channel", zap.Error(err))
		return
	}

	i.port = port
	i.state = AwaitingAck
	port.Start(i.onMessage)

	if i.cfg.Info != nil {
		if err := i.Post(i.cfg.Info().Message()); err != nil {
			i.logger.Warn("Failed to send terminal info", zap.Error(err))
		}
	}

	i.timer = i.cfg.Loop.AfterFunc(i.cfg.Grace, i.onGraceExpired)
}

func (i *Initiator) onMessage(msg Message) {
	if i.state == InitiatorClosed {
		return
	}
	kind, _ := ParseKind(msg.Name)
	switch {
	case kind == KindInitOK:
		i.timer.Stop()
		i.becomeReady("init-ok")
	case kind != KindUnknown && kind.Direction() == Bootstrap:
		i.logger.Warn("Handshake message on bound channel", zap.String("name", msg.Name))
	default:
		i.cfg.Dispatcher.Dispatch(msg)
	}
}

func (i *Initiator) onGraceExpired() {
	if i.state != AwaitingAck {
		return
	}
	i.logger.Info("Picker did not acknowledge channel, proceeding",
		zap.Duration("grace", i.cfg.Grace),
	)
	i.becomeReady("grace")
}

func (i *Initiator) becomeReady(via string) {
	if i.state != AwaitingAck {
		return
	}
	i.state = Ready
	i.logger.Debug("Picker channel ready", zap.String("via", via))
	if i.cfg.OnReady != nil {
		i.cfg.OnReady()
	}
}

// Post sends msg to the surface once the channel is bound.
func (i *Initiator) Post(msg Message) error {
	switch i.state {
	case AwaitingHello:
		return ErrHandshakeIncomplete
	case InitiatorClosed:
		return ErrPortClosed
	}
	logging.LogMessage(i.logger, ToHost.String(), "sent", msg.Name, len(msg.Args))
	return i.port.Post(msg)
}

// Close tears the channel down. It is idempotent.
func (i *Initiator) Close() error {
	if i.state == InitiatorClosed {
		return nil
	}
	i.state = InitiatorClosed
	i.timer.Stop()
	if i.port != nil {
		return i.port.Close()
	}
	return nil
}

// ResponderState is the surface side of the handshake.
type ResponderState int

const (
	AwaitingHandshake ResponderState = iota
	Bound
	ResponderClosed
)

func (s ResponderState) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Bound:
		return "bound"
	case ResponderClosed:
		return "closed"
	default:
		return fmt.Sprintf("ResponderState(%d)", int(s))
	}
}

// ResponderConfig wires a Responder to its collaborators.
type ResponderConfig struct {
	Window     FrameWindow
	Resolve    Resolver
	Dispatcher *Dispatcher
	// Requests is sent in hello. Nil means "terminal-info".
	Requests []string
	OnBound  func()
	Logger   *zap.Logger
}

// Responder drives the handshake from inside a spawned surface. It accepts
// exactly one channel-init; any later one is ignored.
type Responder struct {
	cfg      ResponderConfig
	logger   *zap.Logger
	state    ResponderState
	port     Port
	bindings int
}

// NewResponder validates cfg.
func NewResponder(cfg ResponderConfig) (*Responder, error) {
	if cfg.Window == nil || cfg.Dispatcher == nil {
		return nil, errors.New("ipc: responder needs a window and a dispatcher")
	}
	if cfg.Dispatcher.Side() != ToPicker {
		return nil, fmt.Errorf("%w: responder dispatches picker messages", ErrWrongDirection)
	}
	if cfg.Resolve == nil {
		cfg.Resolve = ResolveLocal
	}
	if cfg.Requests == nil {
		cfg.Requests = []string{KindTerminalInfo.String()}
	}
	return &Responder{cfg: cfg, logger: logging.Or(cfg.Logger)}, nil
}

// State returns the current handshake state.
func (r *Responder) State() ResponderState {
	return r.state
}

// Bindings counts endpoints this responder has ever bound. It never
// exceeds one.
func (r *Responder) Bindings() int {
	return r.bindings
}

// Load announces the surface to its creator.
func (r *Responder) Load() error {
	if r.state != AwaitingHandshake {
		return nil
	}
	return r.cfg.Window.PostWindowMessage(Hello{Requests: r.cfg.Requests}.Envelope())
}

// HandleWindowMessage processes a bootstrap envelope from the creator.
func (r *Responder) HandleWindowMessage(env Envelope) {
	if r.state != AwaitingHandshake {
		r.logger.Debug("Handshake already complete, ignoring window message",
			zap.String("name", env.Name),
			zap.Stringer("state", r.state),
		)
		return
	}
	if env.Name != KindChannelInit.String() {
		r.logger.Warn("Unknown message from terminal", zap.String("name", env.Name))
		return
	}

	port, err := r.cfg.Resolve(env.Transfer)
	if err != nil {
		// No retry: the surface stays inert until it is closed.
		r.state = ResponderClosed
		r.logger.Error("Failed to bind picker channel", zap.Error(err))
		return
	}

	r.port = port
	r.state = Bound
	r.bindings++
	port.Start(r.onMessage)

	if err := r.Post(NewMessage(KindInitOK)); err != nil {
		r.logger.Warn("Failed to acknowledge channel", zap.Error(err))
	}
	if r.cfg.OnBound != nil {
		r.cfg.OnBound()
	}
}

func (r *Responder) onMessage(msg Message) {
	if r.state != Bound {
		return
	}
	if kind, ok := ParseKind(msg.Name); ok && kind.Direction() == Bootstrap {
		r.logger.Warn("Handshake message on bound channel", zap.String("name", msg.Name))
		return
	}
	r.cfg.Dispatcher.Dispatch(msg)
}

// Post sends msg to the creator once the channel is bound.
func (r *Responder) Post(msg Message) error {
	switch r.state {
	case AwaitingHandshake:
		return ErrHandshakeIncomplete
	case ResponderClosed:
		return ErrPortClosed
	}
	logging.LogMessage(r.logger, ToPicker.String(), "sent", msg.Name, len(msg.Args))
	return r.port.Post(msg)
}

// Close releases the channel. It is idempotent.
func (r *Responder) Close() error {
	if r.state == ResponderClosed {
		return nil
	}
	r.state = ResponderClosed
	if r.port != nil {
		return r.port.Close()
	}
	return nil
}
