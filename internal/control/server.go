// Package control exposes the lifecycle coordinator on a loopback HTTP API.
//
// Endpoints:
//
//	GET  /api/status   current snapshot
//	POST /api/begin    {"mode":"elevated"}
//	POST /api/end
//	POST /api/restart
//	GET  /api/events   websocket stream of status events (JSON text frames)
//
// The API is what a display surface, a boot hook, or `ilocalserver ctl`
// drives the server through.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/logging"
	"github.com/aceteam-ai/ilocalserver/internal/pubsub"
)

// DefaultAddress keeps the API on loopback.
const DefaultAddress = "127.0.0.1:8081"

const (
	writeWait    = 5 * time.Second
	pingInterval = 30 * time.Second
)

// Controller is the subset of the coordinator the API drives.
type Controller interface {
	Begin(mode lifecycle.RunMode) error
	End() error
	Restart() error
	Status() lifecycle.Snapshot
	Subscribe() *pubsub.Subscription[lifecycle.StatusEvent]
}

// BeginRequest is the body of POST /api/begin.
type BeginRequest struct {
	Mode string `json:"mode"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Server is the control API server.
type Server struct {
	ctrl     Controller
	address  string
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
}

// Config holds configuration for the control API.
type Config struct {
	Address string // host:port (default: 127.0.0.1:8081)
	Logger  *logging.Logger
}

// NewServer creates a control API server for ctrl.
func NewServer(cfg Config, ctrl Controller) *Server {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("control")
	}
	s := &Server{
		ctrl:    ctrl,
		address: cfg.Address,
		logger:  cfg.Logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/begin", s.handleBegin)
	mux.HandleFunc("/api/end", s.handleEnd)
	mux.HandleFunc("/api/restart", s.handleRestart)
	mux.HandleFunc("/api/events", s.handleEvents)
	return mux
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return errors.New("control server already running")
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srv, done := s.httpServer, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("serve: %v", err)
		}
	}()

	s.logger.Printf("control API listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Stop shuts the server down. Open event streams end when their client
// disconnects or the coordinator's broadcaster is closed.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.httpServer, s.done
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		srv.Close()
	}
	<-done
	return err
}

// checkOrigin allows CLI tools (no Origin) and pages served from loopback.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	s.logger.Printf("rejecting origin: %s", origin)
	return false
}

// handleStatus returns the coordinator snapshot.
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleBegin enters a mode.
// POST /api/begin
func (s *Server) handleBegin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BeginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := lifecycle.ParseRunMode(req.Mode)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Debugf("begin %s requested by %s", mode, r.RemoteAddr)
	if err := s.ctrl.Begin(mode); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleEnd stops the server.
// POST /api/end
func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.ctrl.End(); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleRestart restarts the current mode.
// POST /api/restart
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.ctrl.Restart(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, lifecycle.ErrNotRunning) {
			code = http.StatusConflict
		}
		writeJSONError(w, err.Error(), code)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

// handleEvents streams status events over a websocket until either side
// closes.
// GET /api/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debugf("websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return // Upgrade already sent error response
	}
	defer conn.Close()

	sub := s.ctrl.Subscribe()
	defer sub.Close()

	s.logger.Debugf("event stream opened for %s", r.RemoteAddr)

	// The client never sends data; reading only surfaces its close.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			s.logger.Debugf("event stream closed by %s", r.RemoteAddr)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev, ok := <-sub.C():
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debugf("event stream write to %s: %v", r.RemoteAddr, err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{Error: message})
}
