// Package dashboard provides a real-time WebSocket feed of the inventory.
//
// The dashboard broadcasts display snapshots, sync results and
// connectivity changes to connected WebSocket clients, so a browser tab
// re-renders whenever the sync engine or the mutation service publishes.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageType names the payload carried in Message.Data.
type MessageType string

const (
	MessageTypeSnapshot     MessageType = "snapshot"      // SnapshotData
	MessageTypeSyncComplete MessageType = "sync_complete" // SyncCompleteData
	MessageTypeConnectivity MessageType = "connectivity"  // ConnectivityData
	MessageTypeStats        MessageType = "stats"         // StatsData
)

// Message is one frame sent to every client.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	outboxSize   = 100
	writeTimeout = 5 * time.Second
)

// Server serves the dashboard page, /health and the /ws feed.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	mux      *http.ServeMux
	logger   *log.Logger

	mu      sync.RWMutex
	conns   map[*websocket.Conn]struct{}
	welcome *Message

	outbox chan Message
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds server configuration.
type Config struct {
	Port   int         // 0 picks a free port
	Logger *log.Logger // nil logs to the standard logger
}

// DefaultConfig listens on 8080.
func DefaultConfig() *Config {
	return &Config{Port: 8080, Logger: log.Default()}
}

// NewServer returns a stopped server. Routes may be added with Mount
// until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:   fmt.Sprintf(":%d", config.Port),
		mux:    http.NewServeMux(),
		logger: logger,
		conns:  make(map[*websocket.Conn]struct{}),
		outbox: make(chan Message, outboxSize),
		ctx:    ctx,
		cancel: cancel,
	}
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/{$}", s.handleRoot)
	return s
}

// Mount adds an extra route. Call before Start.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// SetWelcome sets the message each new client receives first.
func (s *Server) SetWelcome(msg Message) {
	s.mu.Lock()
	s.welcome = &msg
	s.mu.Unlock()
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.server = &http.Server{
		Handler:      s.mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(2)
	go s.pump()
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Error serving dashboard: %v", err)
		}
	}()
	return nil
}

// Stop closes every client and shuts the HTTP server down.
func (s *Server) Stop() error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close(websocket.StatusGoingAway, "dashboard stopping")
	}
	clear(s.conns)
	s.mu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down dashboard: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Println("Dashboard stopped")
	return nil
}

// Broadcast queues msg for every client. It never blocks: when the queue
// is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case <-s.ctx.Done():
	case s.outbox <- msg:
	default:
		s.logger.Printf("WARNING: Dashboard queue full, dropped %s message", msg.Type)
	}
}

// pump drains the outbox until Stop.
func (s *Server) pump() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.outbox:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			frame, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Error encoding %s message: %v", msg.Type, err)
				continue
			}
			s.fanOut(frame)
		}
	}
}

// fanOut writes frame to a copy of the client set so connects are not
// held up by a slow writer.
func (s *Server) fanOut(frame []byte) {
	s.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		targets = append(targets, conn)
	}
	s.mu.RUnlock()

	for _, conn := range targets {
		if err := s.write(conn, frame); err != nil {
			s.logger.Printf("Dropping client: %v", err)
			s.removeClient(conn)
		}
	}
}

func (s *Server) write(conn *websocket.Conn, frame []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, frame)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Served on localhost for a local tool; any page may subscribe.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	n := len(s.conns)
	first := Message{Type: MessageTypeStats, Timestamp: time.Now()}
	if s.welcome != nil {
		first = *s.welcome
	}
	s.mu.Unlock()
	s.logger.Printf("Client connected (%d connected)", n)

	if frame, err := json.Marshal(first); err == nil {
		_ = s.write(conn, frame)
	}

	go s.drain(conn)
}

// drain reads until the client goes away. Incoming frames are ignored.
func (s *Server) drain(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	_, ok := s.conns[conn]
	delete(s.conns, conn)
	n := len(s.conns)
	s.mu.Unlock()

	if ok {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (%d connected)", n)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	})
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>Stockroom</title></head>
<body>
<h1>Stockroom</h1>
<p>Live feed: <code>ws://%[1]s/ws</code></p>
<p>Items: <a href="/items">/items</a> (query: <code>filter</code>, <code>sort=none|name-asc|name-desc</code>)</p>
<p><a href="/health">/health</a></p>
</body>
</html>`

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, indexPage, r.Host)
}

// GetAddr returns the bound address once started, the configured one
// before.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}
