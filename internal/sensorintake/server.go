// Package sensorintake accepts a persistent WebSocket connection from the
// in-page browser observer and decodes its location messages (spec
// §4.1). It is grounded on the teacher pack's WebSocket hub
// (Livepeer-FrameWorks-monorepo's api_realtime/internal/websocket/hub.go)
// but simplified to the single-active-client semantics §4.1 requires.
package sensorintake

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/postlens/agent/internal/metrics"
	"github.com/postlens/agent/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server listens on a fixed loopback address, accepts exactly one active
// client, and emits a typed event for every valid frame decoded from it.
type Server struct {
	addr   string
	events chan<- Event

	mu       sync.Mutex
	conn     *websocket.Conn
	http     *http.Server
	listener net.Listener
}

// Addr returns the address the server is actually bound to. Only
// meaningful after ListenAndServe has started listening; primarily used
// by tests that bind to port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// EventKind discriminates what happened on the sensor socket.
type EventKind int

const (
	EventLocation EventKind = iota
	EventDisconnected
)

// Event is what the server hands to the crop coordinator.
type Event struct {
	Kind     EventKind
	Location types.LocationMessage
}

// New creates a sensor intake server. events must be buffered or drained
// promptly; the server never blocks indefinitely trying to deliver one
// since a stalled crop coordinator would otherwise wedge the socket.
func New(addr string, events chan<- Event) *Server {
	return &Server{addr: addr, events: events}
}

// ListenAndServe starts the HTTP/WebSocket listener and blocks until ctx
// is cancelled or the listener fails. It returns the bind or serve error
// if the listener fails; on cancellation it shuts down gracefully and
// returns Shutdown's result.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: mux}
	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sensor intake listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Shutdown closes the active connection (if any) and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	srv := s.http
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleUpgrade accepts a new sensor connection. Only one connection may
// be active at a time: a new connection replaces the prior one, and the
// prior one's read loop exits on the next failed read, emitting
// EventDisconnected.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("sensor intake: upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	metrics.ActiveSensorConnections.Set(1)
	slog.Info("sensor intake: client connected", "remote", r.RemoteAddr)
	go s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()

		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()

		metrics.ActiveSensorConnections.Set(0)
		s.emit(Event{Kind: EventDisconnected})
		slog.Info("sensor intake: client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg types.LocationMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("sensor intake: malformed frame dropped", "error", err)
			continue
		}
		if err := msg.Validate(); err != nil {
			slog.Warn("sensor intake: invalid frame dropped", "error", err)
			continue
		}

		s.emit(Event{Kind: EventLocation, Location: msg})
	}
}

func (s *Server) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-time.After(time.Second):
		slog.Warn("sensor intake: event dropped, coordinator not draining")
	}
}
