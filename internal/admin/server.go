// Package admin exposes a small local HTTP surface for operators:
// liveness of the broker connection, a status snapshot, and a live
// WebSocket stream of operational events. It is disabled unless
// configured and never participates in the command protocol.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Wafl97/IoT-ESP32/internal/buildinfo"
	"github.com/Wafl97/IoT-ESP32/internal/config"
	"github.com/Wafl97/IoT-ESP32/internal/events"
)

// Probe checks broker connectivity for the health endpoint. Return nil
// if healthy.
type Probe func(ctx context.Context) error

// Status is the /status response body.
type Status struct {
	Version          string `json:"version"`
	UptimeMS         uint64 `json:"uptime_ms"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsRejected uint64 `json:"commands_rejected"`
	MeasuresStarted  uint64 `json:"measures_started"`
	MeasuresDone     uint64 `json:"measures_done"`
	SamplesPublished uint64 `json:"samples_published"`
	LastSample       string `json:"last_sample,omitempty"`
}

// Server is the admin HTTP server. Counters are fed from the event
// bus; the /events endpoint streams the same bus over WebSocket.
type Server struct {
	cfg      config.AdminConfig
	bus      *events.Bus
	probe    Probe
	logger   *slog.Logger
	upgrader websocket.Upgrader
	server   *http.Server

	mu    sync.Mutex
	stats Status
}

// New creates a Server but does not listen. Call [Server.Start].
func New(cfg config.AdminConfig, bus *events.Bus, probe Probe, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		bus:    bus,
		probe:  probe,
		logger: logger,
		// Local observability endpoint; cross-origin browsers are
		// not a supported client.
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the admin route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start begins listening and serving in the background, and starts the
// counter-tracking subscription. A listen failure is returned
// immediately: the operator asked for the admin server, so not having
// it is a startup error.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Address, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin server listen on %s: %w", addr, err)
	}

	s.server = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin server failed", "error", err)
		}
	}()
	go s.track(ctx)

	s.logger.Info("admin server listening", "address", ln.Addr().String())
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// track consumes bus events into the status counters until ctx ends.
func (s *Server) track(ctx context.Context) {
	id, ch := s.bus.Subscribe(256)
	defer s.bus.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-ch:
			s.observe(e)
		}
	}
}

func (s *Server) observe(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Kind {
	case events.KindCommandReceived:
		s.stats.CommandsReceived++
	case events.KindCommandRejected:
		s.stats.CommandsRejected++
	case events.KindMeasureStart:
		s.stats.MeasuresStarted++
	case events.KindMeasureDone:
		s.stats.MeasuresDone++
	case events.KindSamplePublished:
		s.stats.SamplesPublished++
		if data, err := json.Marshal(e.Data); err == nil {
			s.stats.LastSample = string(data)
		}
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.probe != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.probe(ctx); err != nil {
			http.Error(w, fmt.Sprintf("broker unreachable: %v", err), http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "ok")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status := s.stats
	s.mu.Unlock()
	status.Version = buildinfo.Version
	status.UptimeMS = buildinfo.UptimeMillis()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Debug("failed to write status response", "error", err)
	}
}

// handleEvents upgrades to WebSocket and forwards bus events as JSON
// until the client disconnects or the bus subscription closes.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, ch := s.bus.Subscribe(256)
	defer s.bus.Unsubscribe(id)

	// Drain client frames so pings and close frames are processed,
	// and so a disconnect wakes the write loop below.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-clientGone:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("websocket event write failed", "error", err)
				return
			}
		}
	}
}
