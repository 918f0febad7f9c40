// Package server provides the WebSocket host transport for the control
// surface. Clients send control requests as JSON frames and receive a
// reply per request; the server additionally broadcasts sync lifecycle
// events to every connected client so the page can reflect sync state.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/steveyegge/unitsync/internal/control"
)

// EventType identifies a broadcast event.
type EventType string

const (
	// EventSyncStarted is broadcast when a sync cycle begins.
	EventSyncStarted EventType = "sync_started"

	// EventSyncComplete is broadcast when a sync cycle finishes cleanly.
	EventSyncComplete EventType = "sync_complete"

	// EventSyncFailed is broadcast when a sync cycle fails; the records
	// remain unsynced and will be retried.
	EventSyncFailed EventType = "sync_failed"

	// EventHistoryCleared is broadcast after a client clears the
	// conversion history, so other connected pages can drop their copy.
	EventHistoryCleared EventType = "history_cleared"
)

// Event is a broadcast message sent to all connected clients.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Port to listen on (0 picks a random free port).
	Port int

	// Logger for server activity (default: stderr logger).
	Logger *log.Logger

	// Assets, when set, is mounted at / to serve the cached converter
	// page alongside the control surface.
	Assets http.Handler
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// Server manages WebSocket connections, dispatching control requests and
// broadcasting events.
type Server struct {
	addr       string
	listener   net.Listener
	server     *http.Server
	dispatcher *control.Dispatcher
	assets     http.Handler

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// New creates a server over the given dispatcher.
func New(dispatcher *control.Dispatcher, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:       fmt.Sprintf(":%d", config.Port),
		dispatcher: dispatcher,
		assets:     config.Assets,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Event, 100),
		ctx:        ctx,
		cancel:     cancel,
		logger:     config.Logger,
	}
}

// Start begins the HTTP server and WebSocket handler.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	if s.assets != nil {
		mux.Handle("/", s.assets)
	}

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Control server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Println("Stopping control server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Control server stopped")
	return nil
}

// Broadcast sends an event to all connected clients. Non-blocking: if the
// broadcast queue is full the event is dropped with a warning.
func (s *Server) Broadcast(event Event) {
	select {
	case s.broadcast <- event:
	case <-s.ctx.Done():
	default:
		s.logger.Println("Warning: broadcast channel full, dropping event")
	}
}

// Event broadcasts a typed event with an arbitrary JSON-encodable body.
// It satisfies the event sinks of the daemon and dispatcher.
func (s *Server) Event(typ string, body interface{}) {
	var data json.RawMessage
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			s.logger.Printf("Failed to encode event %s: %v", typ, err)
			return
		}
	}
	s.Broadcast(Event{Type: EventType(typ), Timestamp: time.Now(), Data: data})
}

// broadcastLoop fans events out to all clients.
func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case event := <-s.broadcast:
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now()
			}

			data, err := json.Marshal(event)
			if err != nil {
				s.logger.Printf("Failed to marshal event: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock to avoid blocking broadcasts.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	go s.readLoop(conn)
}

// readLoop reads control requests from the client, dispatches each one,
// and writes the reply back on the same connection.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, data, err := conn.Read(s.ctx)
		if err != nil {
			return
		}

		var req control.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.writeReply(conn, control.Response{Error: "malformed request"})
			continue
		}

		resp := s.dispatcher.Dispatch(s.ctx, req)
		s.writeReply(conn, resp)

		if req.Type == control.TypeClearHistory && resp.Error == "" {
			s.Broadcast(Event{Type: EventHistoryCleared})
		}
	}
}

func (s *Server) writeReply(conn *websocket.Conn, resp control.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Printf("Failed to marshal reply: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		s.logger.Printf("Failed to write reply: %v", err)
	}
}

// removeClient safely removes a client connection.
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
