package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newListening(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func dial(t *testing.T, url string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return websocket.DefaultDialer.DialContext(ctx, url, nil)
}

func TestHealth(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "OK" {
		t.Errorf("GET /health = %d %q, want 200 OK", rec.Code, rec.Body.String())
	}
}

func TestURLsBeforeListen(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := s.WindowURL(); err != ErrNotListening {
		t.Errorf("WindowURL() error = %v, want ErrNotListening", err)
	}
	if _, _, err := s.OfferChannel(func(*websocket.Conn) {}); err != ErrNotListening {
		t.Errorf("OfferChannel() error = %v, want ErrNotListening", err)
	}
}

func TestWindowIsSingleUse(t *testing.T) {
	s := newListening(t)

	accepted := make(chan *websocket.Conn, 2)
	s.ExpectWindow(func(c *websocket.Conn) { accepted <- c })

	url, err := s.WindowURL()
	if err != nil {
		t.Fatalf("WindowURL() error = %v", err)
	}
	if !strings.HasPrefix(url, "ws://127.0.0.1:") || !strings.HasSuffix(url, "/window") {
		t.Errorf("WindowURL() = %q, want ws://127.0.0.1:port/window", url)
	}

	conn, _, err := dial(t, url)
	if err != nil {
		t.Fatalf("first dial error = %v", err)
	}
	defer conn.Close()

	select {
	case <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("window handler never ran")
	}

	_, resp, err := dial(t, url)
	if err == nil {
		t.Fatal("second window dial should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Errorf("second dial response = %v, want 409", resp)
	}
}

func TestExpectWindowCancel(t *testing.T) {
	s := newListening(t)

	cancelFirst := s.ExpectWindow(func(*websocket.Conn) {})
	second := make(chan struct{}, 1)
	s.ExpectWindow(func(*websocket.Conn) { second <- struct{}{} })

	// Withdrawing a replaced expectation leaves the newer one in place.
	cancelFirst()

	url, _ := s.WindowURL()
	conn, _, err := dial(t, url)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("the newer expectation should receive the connection")
	}
}

func TestChannelTokenIsSingleUse(t *testing.T) {
	s := newListening(t)

	accepted := make(chan struct{}, 2)
	url, token, err := s.OfferChannel(func(*websocket.Conn) { accepted <- struct{}{} })
	if err != nil {
		t.Fatalf("OfferChannel() error = %v", err)
	}
	if !strings.HasSuffix(url, "/channel/"+token) {
		t.Errorf("url = %q, want it to end with the token", url)
	}

	conn, _, err := dial(t, url)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	<-accepted

	if _, resp, err := dial(t, url); err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("reused token: err = %v, resp = %v, want 404", err, resp)
	}
}

func TestRevokeChannel(t *testing.T) {
	s := newListening(t)

	url, token, err := s.OfferChannel(func(*websocket.Conn) {
		t.Error("revoked channel must not be handed out")
	})
	if err != nil {
		t.Fatalf("OfferChannel() error = %v", err)
	}
	s.RevokeChannel(token)

	if _, _, err := dial(t, url); err == nil {
		t.Error("dial of a revoked channel should fail")
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	accepted := make(chan struct{}, 1)
	s.ExpectWindow(func(*websocket.Conn) { accepted <- struct{}{} })
	url, _ := s.WindowURL()
	conn, _, err := dial(t, url)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()
	<-accepted

	if s.GetActiveConnections() != 1 {
		t.Errorf("GetActiveConnections() = %d, want 1", s.GetActiveConnections())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if s.GetActiveConnections() != 0 {
		t.Errorf("GetActiveConnections() after shutdown = %d, want 0", s.GetActiveConnections())
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client connection should be closed by shutdown")
	}
}

func TestNewTLSConfigErrors(t *testing.T) {
	if _, err := NewTLSConfig("", "key.pem"); err == nil {
		t.Error("NewTLSConfig() should require a certificate")
	}
	if _, err := NewTLSConfig("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Error("NewTLSConfig() should fail for missing files")
	}
	if _, err := New(Config{CertPath: "/nonexistent/cert.pem"}); err == nil {
		t.Error("New() should fail when TLS cannot be configured")
	}
	if info := GetTLSInfo(nil); info["enabled"] != false {
		t.Errorf("GetTLSInfo(nil) = %v, want disabled", info)
	}
}
