package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/beagle-term/beagle/internal/logging"
)

// DefaultHost keeps the rendezvous on the local machine.
const DefaultHost = "127.0.0.1"

// ErrNotListening is returned by URL helpers before Listen succeeds.
var ErrNotListening = errors.New("server: not listening")

// ConnHandler takes ownership of an upgraded connection.
type ConnHandler func(conn *websocket.Conn)

// Config holds the server configuration
type Config struct {
	Host     string
	Port     int    // 0 picks a free port
	CertPath string // Serve wss:// when both CertPath and KeyPath are set
	KeyPath  string
	Logger   *zap.Logger
}

// Server is the rendezvous point for pickers running in another process.
// A picker dials /window to reach its creator, then /channel/{token} with
// the single-use token handed to it in channel-init.
type Server struct {
	config    Config
	logger    *zap.Logger
	tlsConfig *tls.Config
	upgrader  websocket.Upgrader
	router    *mux.Router
	http      *http.Server

	wg          sync.WaitGroup
	mu          sync.Mutex
	listener    net.Listener
	window      ConnHandler
	windowGen   uint64
	channels    map[string]ConnHandler
	activeConns map[string]*websocket.Conn
}

// New creates a Server. It does not listen until Listen is called.
func New(config Config) (*Server, error) {
	if config.Host == "" {
		config.Host = DefaultHost
	}

	s := &Server{
		config:      config,
		logger:      logging.Or(config.Logger),
		channels:    make(map[string]ConnHandler),
		activeConns: make(map[string]*websocket.Conn),
	}

	if config.CertPath != "" || config.KeyPath != "" {
		tlsConfig, err := NewTLSConfig(config.CertPath, config.KeyPath)
		if err != nil {
			return nil, err
		}
		s.tlsConfig = tlsConfig
	}

	s.router = s.routes()
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Listen binds the configured address and starts serving in the
// background.
func (s *Server) Listen() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	var (
		ln  net.Listener
		err error
	)
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("Picker rendezvous listening",
		zap.String("addr", ln.Addr().String()),
		zap.Any("tls", GetTLSInfo(s.tlsConfig)),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Rendezvous server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address.
func (s *Server) Addr() (net.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil, ErrNotListening
	}
	return s.listener.Addr(), nil
}

// BaseURL returns ws://host:port or wss://host:port.
func (s *Server) BaseURL() (string, error) {
	addr, err := s.Addr()
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if s.tlsConfig != nil {
		scheme = "wss"
	}
	return scheme + "://" + addr.String(), nil
}

// WindowURL is where the next picker must connect.
func (s *Server) WindowURL() (string, error) {
	base, err := s.BaseURL()
	if err != nil {
		return "", err
	}
	return base + "/window", nil
}

// ExpectWindow hands the next /window connection to h. A later call
// replaces an unused expectation. The returned func withdraws it.
func (s *Server) ExpectWindow(h ConnHandler) (cancel func()) {
	s.mu.Lock()
	s.windowGen++
	gen := s.windowGen
	s.window = h
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.windowGen == gen {
			s.window = nil
		}
	}
}

// OfferChannel registers h under a fresh single-use token and returns the
// URL a picker must dial to reach it.
func (s *Server) OfferChannel(h ConnHandler) (url, token string, err error) {
	base, err := s.BaseURL()
	if err != nil {
		return "", "", err
	}
	token = uuid.NewString()

	s.mu.Lock()
	s.channels[token] = h
	s.mu.Unlock()

	return base + "/channel/" + token, token, nil
}

// RevokeChannel forgets an unused token.
func (s *Server) RevokeChannel(token string) {
	s.mu.Lock()
	delete(s.channels, token)
	s.mu.Unlock()
}

func (s *Server) takeWindow() ConnHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.window
	s.window = nil
	return h
}

func (s *Server) takeChannel(token string) ConnHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.channels[token]
	if !ok {
		return nil
	}
	delete(s.channels, token)
	return h
}

// track records conn until it is closed by its owner or by Shutdown.
func (s *Server) track(conn *websocket.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	s.mu.Lock()
	s.activeConns[remoteAddr] = conn
	s.mu.Unlock()

	conn.SetCloseHandler(func(code int, text string) error {
		s.mu.Lock()
		delete(s.activeConns, remoteAddr)
		s.mu.Unlock()
		logging.LogConnection(s.logger, remoteAddr, "connection_closed")
		msg := websocket.FormatCloseMessage(code, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return nil
	})
	logging.LogConnection(s.logger, remoteAddr, "connection_accepted")
}

// Shutdown stops accepting connections and closes the active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("Shutting down rendezvous server")

	err := s.http.Shutdown(ctx)

	s.mu.Lock()
	for addr, conn := range s.activeConns {
		s.logger.Debug("Closing active connection", zap.String("remote_addr", addr))
		_ = conn.Close()
	}
	s.activeConns = make(map[string]*websocket.Conn)
	s.window = nil
	s.channels = make(map[string]ConnHandler)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout, forcing close")
	}
	return err
}

// GetActiveConnections returns the number of active connections
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
