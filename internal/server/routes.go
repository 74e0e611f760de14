package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/window", s.handleWindow).Methods("GET")
	r.HandleFunc("/channel/{token}", s.handleChannel).Methods("GET")
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := fmt.Fprintln(w, "OK"); err != nil {
		s.logger.Debug("Failed to write health response", zap.Error(err))
	}
}

// handleWindow accepts the picker's window connection. Only one picker is
// expected at a time; anything else is turned away before the upgrade.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	h := s.takeWindow()
	if h == nil {
		s.logger.Warn("Unexpected picker window connection", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "no picker expected", http.StatusConflict)
		return
	}
	s.upgrade(w, r, "window", h)
}

// handleChannel accepts a channel connection. Tokens are single use.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	h := s.takeChannel(token)
	if h == nil {
		s.logger.Warn("Rejected channel connection",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("token", token),
		)
		http.Error(w, "unknown channel", http.StatusNotFound)
		return
	}
	s.upgrade(w, r, "channel", h)
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request, kind string, h ConnHandler) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("route", kind),
			zap.Error(err),
		)
		return
	}
	s.track(conn)
	s.logger.Debug("Picker connected", zap.String("route", kind), zap.String("remote_addr", r.RemoteAddr))
	h(conn)
}
