package surface

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/eventloop"
	"github.com/beagle-term/beagle/internal/host"
	"github.com/beagle-term/beagle/internal/ipc"
	"github.com/beagle-term/beagle/internal/logging"
	"github.com/beagle-term/beagle/internal/server"
)

// channelDrain bounds how long a lost window waits for its channel to
// finish delivering before the picker counts as dismissed.
const channelDrain = 2 * time.Second

// RemoteConfig configures a picker running in another process.
type RemoteConfig struct {
	Loop   *eventloop.Loop
	Server *server.Server
	// Announce tells the user where to point the picker.
	Announce func(windowURL string)
	Logger   *zap.Logger
}

// Remote waits for a `beagle picker` process to dial the rendezvous
// server. Window messages posted before it connects are queued.
type Remote struct {
	cfg    RemoteConfig
	logger *zap.Logger

	handler func(ipc.Envelope)
	dismiss func()

	cancelWindow func()
	window       *ipc.WebSocketWindow
	pending      []ipc.Envelope
	channel      *ipc.WebSocketPort
	tokens       []string
	shown        bool
	closed       bool
}

// NewRemoteFactory returns a factory producing a fresh Remote per prompt.
func NewRemoteFactory(cfg RemoteConfig) host.SurfaceFactory {
	return func() (host.Surface, error) {
		return NewRemote(cfg)
	}
}

// NewRemote validates cfg. The server must already be listening.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Loop == nil || cfg.Server == nil {
		return nil, errors.New("surface: remote picker needs a loop and a server")
	}
	return &Remote{cfg: cfg, logger: logging.Or(cfg.Logger)}, nil
}

func (r *Remote) SetWindowHandler(h func(ipc.Envelope)) { r.handler = h }

func (r *Remote) OnDismiss(fn func()) { r.dismiss = fn }

// Show registers for the next /window connection and announces its URL.
func (r *Remote) Show() error {
	if r.shown || r.closed {
		return errors.New("surface: picker already shown")
	}
	url, err := r.cfg.Server.WindowURL()
	if err != nil {
		return err
	}
	r.shown = true

	r.cancelWindow = r.cfg.Server.ExpectWindow(func(conn *websocket.Conn) {
		if !r.cfg.Loop.Post(func() { r.attachWindow(conn) }) {
			_ = conn.Close()
		}
	})

	r.logger.Info("Waiting for picker", zap.String("url", url))
	if r.cfg.Announce != nil {
		r.cfg.Announce(url)
	}
	return nil
}

func (r *Remote) attachWindow(conn *websocket.Conn) {
	if r.closed || r.window != nil {
		_ = conn.Close()
		return
	}
	r.window = ipc.NewWebSocketWindow(conn, r.cfg.Loop, r.logger, r.onEnvelope)
	logging.LogConnection(r.logger, conn.RemoteAddr().String(), "picker_window_attached")

	for _, env := range r.pending {
		if err := r.window.PostWindowMessage(env); err != nil {
			r.logger.Warn("Failed to flush window message", zap.String("name", env.Name), zap.Error(err))
		}
	}
	r.pending = nil

	go func(w *ipc.WebSocketWindow) {
		<-w.Done()
		r.cfg.Loop.Post(r.windowLost)
	}(r.window)
}

func (r *Remote) onEnvelope(env ipc.Envelope) {
	if r.closed || r.handler == nil {
		return
	}
	r.handler(env)
}

// PostWindowMessage delivers env to the picker, queueing it until the
// picker has connected.
func (r *Remote) PostWindowMessage(env ipc.Envelope) error {
	if r.closed {
		return ipc.ErrPortClosed
	}
	if r.window == nil {
		r.pending = append(r.pending, env)
		return nil
	}
	return r.window.PostWindowMessage(env)
}

// OpenChannel offers a single-use channel URL. The returned port buffers
// until the picker dials it.
func (r *Remote) OpenChannel() (ipc.Port, any, error) {
	if r.closed {
		return nil, nil, ipc.ErrPortClosed
	}
	lazy := ipc.NewLazyPort()
	url, token, err := r.cfg.Server.OfferChannel(func(conn *websocket.Conn) {
		port := ipc.NewWebSocketPort(conn, r.cfg.Loop, r.logger)
		if !r.cfg.Loop.Post(func() { r.attachChannel(lazy, port) }) {
			_ = port.Close()
		}
	})
	if err != nil {
		return nil, nil, err
	}
	r.tokens = append(r.tokens, token)
	return lazy, url, nil
}

func (r *Remote) attachChannel(lazy *ipc.LazyPort, port *ipc.WebSocketPort) {
	if r.closed {
		_ = port.Close()
		return
	}
	if err := lazy.Attach(port); err != nil {
		r.logger.Warn("Failed to attach picker channel", zap.Error(err))
		_ = port.Close()
		return
	}
	r.channel = port
}

// windowLost runs when the picker's window connection ends. Messages may
// still be in flight on the channel, so dismissal waits for it too.
func (r *Remote) windowLost() {
	if r.closed {
		return
	}
	if ch := r.channel; ch != nil {
		go func() {
			select {
			case <-ch.Done():
			case <-time.After(channelDrain):
			}
			r.cfg.Loop.Post(r.lost)
		}()
		return
	}
	r.lost()
}

func (r *Remote) lost() {
	if r.closed {
		return
	}
	r.shutdown()
	r.logger.Debug("Remote picker went away")
	if r.dismiss != nil {
		r.dismiss()
	}
}

// Close withdraws the rendezvous and drops the picker's connections. It
// never triggers OnDismiss.
func (r *Remote) Close() error {
	if r.closed {
		return nil
	}
	r.shutdown()
	return nil
}

func (r *Remote) shutdown() {
	r.closed = true
	r.pending = nil
	if r.cancelWindow != nil {
		r.cancelWindow()
	}
	for _, token := range r.tokens {
		r.cfg.Server.RevokeChannel(token)
	}
	r.tokens = nil
	if r.window != nil {
		_ = r.window.Close()
	}
	if r.channel != nil {
		_ = r.channel.Close()
	}
}
