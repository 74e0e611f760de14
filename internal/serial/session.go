package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/logging"
)

// DefaultReadBufferSize is the read pump's chunk size.
const DefaultReadBufferSize = 4096

// Observer receives session activity. The metrics package implements it.
type Observer interface {
	SessionTransition(from, to string)
	BytesRead(n int)
	BytesWritten(n int)
}

// Config wires a Session to its collaborators.
type Config struct {
	Loop      *eventloop.Loop
	Transport Transport

	// ReadBufferSize bounds a single read. Zero means DefaultReadBufferSize.
	ReadBufferSize int

	// OnData receives every chunk read from the device, in order.
	OnData func(data []byte)
	// OnDrop fires once if an open connection fails.
	OnDrop func(err error)
	// OnStateChange fires after every transition.
	OnStateChange func(from, to State)

	Observer Observer
	Logger   *zap.Logger
}

var sessionSeq atomic.Uint64

// Session owns at most one connection to one port for its whole life. A
// session is never reopened: once Closed or Failed, make a new one.
//
// All methods must be called on cfg.Loop. Transport I/O runs on goroutines
// owned by the session and reports back through the loop.
type Session struct {
	cfg    Config
	logger *zap.Logger
	id     uint64

	state State
	port  string
	baud  int
	conn  Conn
	out   *writer
	err   error

	cancelOpen context.CancelFunc
}

// NewSession creates an Idle session.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Loop == nil || cfg.Transport == nil {
		return nil, errors.New("serial: session needs a loop and a transport")
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultReadBufferSize
	}
	return &Session{
		cfg:    cfg,
		logger: logging.Or(cfg.Logger),
		id:     sessionSeq.Add(1),
	}, nil
}

// ID is unique per session within the process.
func (s *Session) ID() uint64 { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State { return s.state }

// Err returns the reason for Failed, or nil.
func (s *Session) Err() error { return s.err }

// PortName returns the port requested by Open.
func (s *Session) PortName() string { return s.port }

// BaudRate returns the rate requested by Open.
func (s *Session) BaudRate() int { return s.baud }

// Conn returns the live connection while Open.
func (s *Session) Conn() Conn { return s.conn }

// Open starts opening portName. It returns ErrInvalidTransition unless the
// session is Idle. done is called on the loop exactly once with nil on
// success, a *SessionError on failure, or ErrSessionClosed if Close won the
// race.
func (s *Session) Open(ctx context.Context, portName string, opts Options, done func(error)) error {
	if s.state != Idle {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, s.state)
	}
	if done == nil {
		done = func(error) {}
	}

	s.port = portName
	s.baud = opts.BaudRate
	if err := s.transition(Opening); err != nil {
		return err
	}

	openCtx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel

	transport := s.cfg.Transport
	loop := s.cfg.Loop
	go func() {
		conn, err := transport.Open(openCtx, portName, opts)
		posted := loop.Post(func() { s.finishOpen(conn, err, done) })
		if !posted && conn != nil {
			_ = conn.Close()
		}
	}()
	return nil
}

func (s *Session) finishOpen(conn Conn, err error, done func(error)) {
	if s.cancelOpen != nil {
		s.cancelOpen()
		s.cancelOpen = nil
	}

	if s.state != Opening {
		if conn != nil {
			_ = conn.Close()
		}
		s.logger.Debug("Discarding open result for closed session",
			zap.String("port", s.port),
			zap.Stringer("state", s.state),
		)
		done(ErrSessionClosed)
		return
	}

	if err != nil {
		serr := &SessionError{Kind: OpenFailed, Port: s.port, Err: err}
		s.err = serr
		_ = s.transition(Failed)
		s.logger.Warn("Failed to open port", zap.String("port", s.port), zap.Error(err))
		done(serr)
		return
	}

	s.conn = conn
	s.out = newWriter(conn, func(werr error) {
		s.cfg.Loop.Post(func() { s.ioFailed(conn, WriteFailed, werr) })
	}, s.cfg.Observer)
	_ = s.transition(Open)
	go s.readPump(conn)

	s.logger.Info("Port open",
		zap.String("port", s.port),
		zap.Int("baud", s.baud),
		zap.String("connection", conn.ID()),
	)
	done(nil)
}

// readPump is the single reader of conn.
func (s *Session) readPump(conn Conn) {
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !s.cfg.Loop.Post(func() { s.deliver(conn, chunk) }) {
				return
			}
		}
		if err != nil {
			s.cfg.Loop.Post(func() { s.ioFailed(conn, DeviceDropped, err) })
			return
		}
	}
}

func (s *Session) deliver(conn Conn, chunk []byte) {
	if s.conn != conn || s.state != Open {
		return
	}
	logging.LogRawBytes(s.logger, "rx "+s.port, chunk)
	if s.cfg.Observer != nil {
		s.cfg.Observer.BytesRead(len(chunk))
	}
	if s.cfg.OnData != nil {
		s.cfg.OnData(chunk)
	}
}

func (s *Session) ioFailed(conn Conn, kind ErrorKind, err error) {
	if s.conn != conn || s.state != Open {
		return
	}
	serr := &SessionError{Kind: kind, Port: s.port, Err: err}
	s.err = serr
	s.release()
	_ = s.transition(Failed)
	s.logger.Warn("Device connection lost", zap.String("port", s.port), zap.Error(err))
	if s.cfg.OnDrop != nil {
		s.cfg.OnDrop(serr)
	}
}

// Write sends data to the device. Outside Open it is dropped silently:
// nothing is queued and no error is reported.
func (s *Session) Write(data []byte) {
	if s.state != Open || len(data) == 0 {
		if len(data) > 0 {
			s.logger.Debug("Dropping write", zap.Stringer("state", s.state), zap.Int("bytes", len(data)))
		}
		return
	}
	logging.LogRawBytes(s.logger, "tx "+s.port, data)
	buf := make([]byte, len(data))
	copy(buf, data)
	s.out.enqueue(buf)
}

// Close ends the session. It is idempotent and releases the connection at
// most once. An open still in flight completes into a closed session.
func (s *Session) Close() error {
	switch s.state {
	case Idle:
		return s.transition(Closed)
	case Opening:
		if s.cancelOpen != nil {
			s.cancelOpen()
			s.cancelOpen = nil
		}
		_ = s.transition(Closing)
		return s.transition(Closed)
	case Open:
		_ = s.transition(Closing)
		err := s.release()
		_ = s.transition(Closed)
		return err
	default:
		return nil
	}
}

func (s *Session) release() error {
	if s.conn == nil {
		return nil
	}
	s.out.stop()
	err := s.conn.Close()
	s.conn = nil
	s.out = nil
	if err != nil {
		s.logger.Debug("Error closing connection", zap.String("port", s.port), zap.Error(err))
	}
	return err
}

func (s *Session) transition(to State) error {
	from := s.state
	if !CanTransition(from, to) {
		s.logger.Error("Rejected session transition",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	s.state = to
	logging.LogTransition(s.logger, s.port, from.String(), to.String())
	if s.cfg.Observer != nil {
		s.cfg.Observer.SessionTransition(from.String(), to.String())
	}
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(from, to)
	}
	return nil
}

// writer feeds a connection from its own goroutine in enqueue order.
type writer struct {
	conn     Conn
	onError  func(error)
	observer Observer

	mu      sync.Mutex
	queue   [][]byte
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newWriter(conn Conn, onError func(error), observer Observer) *writer {
	w := &writer{
		conn:     conn,
		onError:  onError,
		observer: observer,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *writer) enqueue(data []byte) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, data)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.queue = nil
	w.mu.Unlock()
	close(w.done)
}

func (w *writer) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if w.stopped || len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			data := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()

			n, err := w.conn.Write(data)
			if w.observer != nil && n > 0 {
				w.observer.BytesWritten(n)
			}
			if err != nil {
				w.onError(err)
				return
			}
		}
	}
}
