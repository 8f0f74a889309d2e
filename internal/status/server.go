package status

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aceteam-ai/ilocalserver/internal/lifecycle"
	"github.com/aceteam-ai/ilocalserver/internal/logging"
	"github.com/aceteam-ai/ilocalserver/internal/platform"
	"github.com/aceteam-ai/ilocalserver/internal/telemetry"
)

// Server starts diagnostic page instances.
type Server struct {
	cfg       ServerConfig
	collector *telemetry.Collector
	rebooter  Rebooter
	logger    *logging.Logger
}

// ServerConfig holds configuration for the status server.
type ServerConfig struct {
	Port            int    // HTTP server port (default: 8080)
	BindAddress     string // Interface to bind (default: all)
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// RebootRequiresElevated skips the reboot unless the instance runs in
	// elevated mode. /restart still answers 200.
	RebootRequiresElevated bool

	// LocalAddress returns the host shown on the page (default: platform.LocalIPv4).
	LocalAddress func() string
	Logger       *logging.Logger
	Now          func() time.Time
}

// NewServer creates a new status HTTP server. rebooter may be nil, in which
// case /restart only answers.
func NewServer(cfg ServerConfig, collector *telemetry.Collector, rebooter Rebooter) *Server {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.LocalAddress == nil {
		cfg.LocalAddress = platform.LocalIPv4
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New("status")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Server{
		cfg:       cfg,
		collector: collector,
		rebooter:  rebooter,
		logger:    cfg.Logger,
	}
}

// Port returns the port the server is configured to listen on.
func (s *Server) Port() int {
	return s.cfg.Port
}

// Start binds the listener and serves on a background goroutine. The bind
// happens before Start returns; a failure is a *BindError.
func (s *Server) Start(mode lifecycle.RunMode) (*Instance, error) {
	addr := net.JoinHostPort(s.cfg.BindAddress, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}

	inst := &Instance{
		server:    s,
		mode:      mode,
		listener:  ln,
		startedAt: s.cfg.Now(),
		address:   s.displayAddress(ln),
		done:      make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/restart", inst.handleRestart)
	mux.HandleFunc("/", inst.handlePage)
	inst.mux = mux

	inst.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	go func() {
		defer close(inst.done)
		if err := inst.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("serve %s: %v", inst.address, err)
		}
	}()

	s.logger.Printf("listening on %s (%s mode)", inst.address, mode)
	return inst, nil
}

// displayAddress is the host:port a browser on the LAN should use.
func (s *Server) displayAddress(ln net.Listener) string {
	port := s.cfg.Port
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcp.Port
	}

	host := s.cfg.BindAddress
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = s.cfg.LocalAddress()
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// reboot fires the rebooter on its own goroutine. Failures are only logged.
func (s *Server) reboot(mode lifecycle.RunMode) {
	if s.cfg.RebootRequiresElevated && mode != lifecycle.ModeElevated {
		s.logger.Printf("reboot refused: %s mode is not elevated", mode)
		return
	}
	if s.rebooter == nil {
		s.logger.Printf("reboot requested but no rebooter is configured")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), rebootTimeout)
		defer cancel()

		s.logger.Printf("rebooting device")
		if err := s.rebooter.Reboot(ctx); err != nil {
			s.logger.Printf("reboot failed: %v", err)
		}
	}()
}

// Instance is one bound diagnostic server.
type Instance struct {
	server     *Server
	mode       lifecycle.RunMode
	listener   net.Listener
	httpServer *http.Server
	mux        *http.ServeMux
	startedAt  time.Time
	address    string

	stopOnce sync.Once
	stopErr  error
	done     chan struct{}
}

// Address returns the host:port shown on the page.
func (i *Instance) Address() string {
	return i.address
}

// Mode returns the run mode the instance was started for.
func (i *Instance) Mode() lifecycle.RunMode {
	return i.mode
}

// StartedAt returns when the listener was bound.
func (i *Instance) StartedAt() time.Time {
	return i.startedAt
}

// Uptime returns how long the instance has been serving.
func (i *Instance) Uptime() time.Duration {
	return i.server.cfg.Now().Sub(i.startedAt)
}

// Done is closed once the serve loop has returned.
func (i *Instance) Done() <-chan struct{} {
	return i.done
}

// ServeHTTP routes a request without going through the listener.
func (i *Instance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	i.mux.ServeHTTP(w, r)
}

// Stop shuts the server down and releases the port. Subsequent calls return
// the first call's result.
func (i *Instance) Stop() error {
	i.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), i.server.cfg.ShutdownTimeout)
		defer cancel()

		if err := i.httpServer.Shutdown(ctx); err != nil {
			i.stopErr = err
			i.httpServer.Close()
		}
		<-i.done
		i.server.logger.Printf("stopped listening on %s", i.address)
	})
	return i.stopErr
}

// handleRestart answers first, then reboots.
// GET /restart
func (i *Instance) handleRestart(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, rebootingMessage)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	i.server.reboot(i.mode)
}

// handlePage renders the diagnostic page for every other path.
func (i *Instance) handlePage(w http.ResponseWriter, r *http.Request) {
	snap := i.server.collector.Collect(r.Context())
	data := newPageData(snap, i.Uptime(), i.address, i.mode)

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		i.server.logger.Printf("render page: %v", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}
