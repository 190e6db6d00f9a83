package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/config"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Version is reported by /api/health
var Version = "0.1.0"

// Server represents the local status HTTP server
type Server struct {
	router    *mux.Router
	hub       *Hub
	configMgr *config.Manager
	upgrader  websocket.Upgrader
	http      *http.Server
	log       *zerolog.Logger
}

// NewServer creates a new status server. configMgr may be nil.
func NewServer(hub *Hub, configMgr *config.Manager) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		hub:       hub,
		configMgr: configMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.WithComponent("api"),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleGetStatus).Methods("GET")
	api.HandleFunc("/stream", s.handleStream)
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the routed handler with CORS headers applied
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start listens on addr and serves until Shutdown. It returns once the
// listener is bound; serve errors are logged.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("Status server listening")

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Status server stopped")
		}
	}()
	return nil
}

// Shutdown stops the server started by Start
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// enableCORS adds CORS headers
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := s.hub.Current()
	if !ok {
		http.Error(w, "No decision yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("WebSocket upgrade error")
		return
	}
	defer conn.Close()

	updates := s.hub.Subscribe()
	defer s.hub.Unsubscribe(updates)

	// The client never sends; reading detects its close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if current, ok := s.hub.Current(); ok {
		if err := conn.WriteJSON(current); err != nil {
			s.log.Debug().Err(err).Msg("WebSocket write error")
			return
		}
	}

	for {
		select {
		case status, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(status); err != nil {
				s.log.Debug().Err(err).Msg("WebSocket write error")
				return
			}
		case <-gone:
			return
		}
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.configMgr == nil {
		http.Error(w, "No configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, s.configMgr.Get())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":      "healthy",
		"version":     Version,
		"subscribers": s.hub.Subscribers(),
	})
}
