package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Maximum message size accepted from the peer
	maxMessageSize = 64 * 1024
)

// WebSocketPort is a Port carried over a websocket connection, used when the
// picker runs in a separate process. Messages are JSON text frames.
type WebSocketPort struct {
	conn   *websocket.Conn
	loop   *eventloop.Loop
	logger *zap.Logger
	out    *frameWriter

	mu      sync.Mutex
	handler func(Message)
	pending []Message
	closed  bool
	err     error

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketPort wraps conn and starts reading from it. Received messages
// are delivered on loop.
func NewWebSocketPort(conn *websocket.Conn, loop *eventloop.Loop, logger *zap.Logger) *WebSocketPort {
	conn.SetReadLimit(maxMessageSize)
	p := &WebSocketPort{
		conn:   conn,
		loop:   loop,
		logger: logging.Or(logger),
		done:   make(chan struct{}),
	}
	p.out = newFrameWriter(conn, p.logger)
	go p.readLoop()
	return p
}

// DialWebSocketPort connects to a channel endpoint URL.
func DialWebSocketPort(ctx context.Context, url string, loop *eventloop.Loop, logger *zap.Logger) (*WebSocketPort, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial channel %s: %w", url, err)
	}
	return NewWebSocketPort(conn, loop, logger), nil
}

func (p *WebSocketPort) readLoop() {
	defer close(p.done)
	defer p.out.close()

	for {
		var msg Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			p.mu.Lock()
			closed := p.closed
			if !closed {
				p.err = err
			}
			p.mu.Unlock()

			if !closed && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.logger.Warn("Channel connection lost", zap.Error(err))
			}
			return
		}

		if !p.loop.Post(func() { p.receive(msg) }) {
			return
		}
	}
}

func (p *WebSocketPort) receive(msg Message) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	h := p.handler
	if h == nil {
		p.pending = append(p.pending, msg)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	h(msg)
}

// Start begins delivery, flushing anything that arrived earlier.
func (p *WebSocketPort) Start(onMessage func(Message)) {
	p.mu.Lock()
	if p.handler != nil || p.closed {
		p.mu.Unlock()
		return
	}
	p.handler = onMessage
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, msg := range pending {
		onMessage(msg)
	}
}

// Post queues msg to be written as one JSON text frame. It never waits on
// the peer; write failures are logged and end the connection.
func (p *WebSocketPort) Post(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || !p.out.enqueue(msg.clone()) {
		return ErrPortClosed
	}
	return nil
}

// Close stops accepting messages. Frames already queued are written, then
// a close frame is sent and the connection released.
func (p *WebSocketPort) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.pending = nil
		p.mu.Unlock()

		p.out.close()
	})
	return nil
}

// Done is closed when the connection stops delivering messages.
func (p *WebSocketPort) Done() <-chan struct{} {
	return p.done
}

// Released is closed once queued frames are written and the connection
// is released.
func (p *WebSocketPort) Released() <-chan struct{} {
	return p.out.released
}

// Err returns the read error that ended the connection, if the far end
// went away rather than this end closing.
func (p *WebSocketPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// WebSocketWindow carries bootstrap envelopes between a surface and its
// creator when they live in different processes. Both ends use it: the
// host as the surface's window, the picker as its FrameWindow.
type WebSocketWindow struct {
	conn       *websocket.Conn
	loop       *eventloop.Loop
	logger     *zap.Logger
	onEnvelope func(Envelope)
	out        *frameWriter

	done chan struct{}
}

// NewWebSocketWindow wraps conn. Every envelope read is passed to
// onEnvelope on loop.
func NewWebSocketWindow(conn *websocket.Conn, loop *eventloop.Loop, logger *zap.Logger, onEnvelope func(Envelope)) *WebSocketWindow {
	conn.SetReadLimit(maxMessageSize)
	w := &WebSocketWindow{
		conn:       conn,
		loop:       loop,
		logger:     logging.Or(logger),
		onEnvelope: onEnvelope,
		done:       make(chan struct{}),
	}
	w.out = newFrameWriter(conn, w.logger)
	go w.readLoop()
	return w
}

// DialWebSocketWindow connects to a creator's window URL.
func DialWebSocketWindow(ctx context.Context, url string, loop *eventloop.Loop, logger *zap.Logger, onEnvelope func(Envelope)) (*WebSocketWindow, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial window %s: %w", url, err)
	}
	return NewWebSocketWindow(conn, loop, logger, onEnvelope), nil
}

func (w *WebSocketWindow) readLoop() {
	defer close(w.done)
	defer w.out.close()

	for {
		var env Envelope
		if err := w.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Debug("Window connection ended", zap.Error(err))
			}
			return
		}
		if !w.loop.Post(func() { w.onEnvelope(env) }) {
			return
		}
	}
}

// PostWindowMessage queues env to be written as one JSON text frame.
// Transfer must be JSON-encodable; across processes it is a channel URL.
func (w *WebSocketWindow) PostWindowMessage(env Envelope) error {
	if !w.out.enqueue(env) {
		return ErrPortClosed
	}
	return nil
}

// Close ends the window connection once queued envelopes are written.
func (w *WebSocketWindow) Close() error {
	w.out.close()
	return nil
}

// Done is closed when the far end goes away or Close runs.
func (w *WebSocketWindow) Done() <-chan struct{} {
	return w.done
}

// DialResolver resolves channel URLs transferred across processes. The
// returned port is usable at once: the dial runs off the loop and messages
// posted meanwhile are held, and flushed even if the port is closed before
// the dial completes.
func DialResolver(ctx context.Context, loop *eventloop.Loop, logger *zap.Logger) Resolver {
	logger = logging.Or(logger)
	return func(transfer any) (Port, error) {
		url, ok := transfer.(string)
		if !ok || url == "" {
			return nil, fmt.Errorf("%w: %T", ErrUnresolvableEndpoint, transfer)
		}

		d := &dialedPort{LazyPort: NewLazyPort(), released: make(chan struct{})}
		d.drain = true
		lazy := d.LazyPort
		go func() {
			dialCtx, cancel := context.WithTimeout(ctx, writeWait)
			defer cancel()

			port, err := DialWebSocketPort(dialCtx, url, loop, logger)
			if err != nil {
				logger.Warn("Failed to open picker channel", zap.Error(err))
				loop.Post(lazy.abandon)
				close(d.released)
				return
			}
			go func() {
				<-port.Released()
				close(d.released)
			}()
			if !loop.Post(func() {
				if err := lazy.Attach(port); err != nil && !errors.Is(err, ErrPortClosed) {
					logger.Warn("Failed to attach picker channel", zap.Error(err))
				}
			}) {
				_ = port.Close()
			}
		}()
		return d, nil
	}
}

// dialedPort is the port DialResolver hands out while its dial runs.
type dialedPort struct {
	*LazyPort
	released chan struct{}
}

// Released is closed once the channel has written everything and gone, or
// the dial failed.
func (p *dialedPort) Released() <-chan struct{} {
	return p.released
}

// frameWriter writes JSON frames to a websocket from its own goroutine, in
// enqueue order. The connection is released once the writer stops.
type frameWriter struct {
	conn   *websocket.Conn
	logger *zap.Logger

	mu       sync.Mutex
	queue    []any
	closing  bool
	wake     chan struct{}
	released chan struct{}
}

func newFrameWriter(conn *websocket.Conn, logger *zap.Logger) *frameWriter {
	w := &frameWriter{
		conn:     conn,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		released: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *frameWriter) enqueue(v any) bool {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, v)
	w.mu.Unlock()
	w.signal()
	return true
}

// close lets the queue drain, then closes the connection.
func (w *frameWriter) close() {
	w.mu.Lock()
	w.closing = true
	w.mu.Unlock()
	w.signal()
}

func (w *frameWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *frameWriter) run() {
	defer close(w.released)
	for range w.wake {
		for {
			w.mu.Lock()
			if len(w.queue) == 0 {
				closing := w.closing
				w.mu.Unlock()
				if closing {
					_ = w.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
						time.Now().Add(writeWait))
					_ = w.conn.Close()
					return
				}
				break
			}
			v := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()

			if err := w.write(v); err != nil {
				w.logger.Debug("Websocket write failed", zap.Error(err))
				w.mu.Lock()
				w.closing = true
				w.queue = nil
				w.mu.Unlock()
				_ = w.conn.Close()
				return
			}
		}
	}
}

func (w *frameWriter) write(v any) error {
	if err := w.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	return w.conn.WriteJSON(v)
}
