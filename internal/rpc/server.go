// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	// ErrServerClosed is returned when operations are attempted on a closed server.
	ErrServerClosed = errors.New("rpc: server closed")
)

// ServerConfig configures the RPC server.
type ServerConfig struct {
	// SocketPath is the Unix socket the server listens on.
	SocketPath string

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 5 seconds
	ShutdownTimeout time.Duration

	// Logger is the structured logger for server events.
	// If nil, a default logger is used.
	Logger *slog.Logger
}

// Server serves RPC requests over WebSocket connections on a Unix socket.
type Server struct {
	config   ServerConfig
	logger   *slog.Logger
	registry *Registry
	upgrader websocket.Upgrader

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	closed     bool

	connMu      sync.Mutex
	connections map[*websocket.Conn]struct{}

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// NewServer creates a new RPC server with the given configuration.
func NewServer(config ServerConfig) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}

	return &Server{
		config:      config,
		logger:      config.Logger,
		registry:    NewRegistry(),
		connections: make(map[*websocket.Conn]struct{}),
		shutdownCh:  make(chan struct{}),
	}
}

// Registry returns the server's handler registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Start binds the Unix socket and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.httpServer != nil {
		return nil // Already started
	}

	listener, err := listenUnix(s.config.SocketPath)
	if err != nil {
		return err
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// WriteTimeout intentionally omitted to support long-lived WebSocket connections
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("rpc server error", "error", err)
		}
	}()

	s.logger.Debug("rpc server started", "socket", s.config.SocketPath)
	return nil
}

// listenUnix creates a Unix socket listener with owner-only permissions.
func listenUnix(socketPath string) (net.Listener, error) {
	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove existing socket file if present
	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on Unix socket: %w", err)
	}

	if err := os.Chmod(socketPath, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return ln, nil
}

// handleWebSocket handles WebSocket upgrade requests.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()

	if closed {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s.connMu.Lock()
	s.connections[conn] = struct{}{}
	s.connMu.Unlock()

	go s.handleConnection(conn)
}

// handleConnection reads requests from a connection and dispatches them
// to the registry until the connection closes or the server shuts down.
func (s *Server) handleConnection(conn *websocket.Conn) {
	defer func() {
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
		conn.Close()
	}()

	for {
		select {
		case <-s.shutdownCh:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var req Message
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Warn("invalid rpc message", "error", err)
			continue
		}
		if err := req.Validate(); err != nil {
			s.logger.Warn("invalid rpc message", "error", err)
			continue
		}

		resp := s.dispatch(&req)
		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn("failed to write rpc response", "error", err)
			return
		}
	}
}

// dispatch runs a request through the registry and converts failures
// into error responses.
func (s *Server) dispatch(req *Message) *Message {
	resp, err := s.registry.Handle(context.Background(), req)
	if err != nil {
		code := "internal_error"
		if errors.Is(err, ErrMethodNotFound) {
			code = "method_not_found"
		}
		return NewErrorResponse(req, code, err.Error())
	}
	return resp
}

// Shutdown gracefully shuts down the server, closing all connections
// and removing the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.closed = true
	httpServer := s.httpServer
	s.mu.Unlock()

	var shutdownErr error
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		s.connMu.Lock()
		for conn := range s.connections {
			conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(time.Second),
			)
			conn.Close()
		}
		s.connMu.Unlock()

		if httpServer != nil {
			shutdownErr = httpServer.Shutdown(shutdownCtx)
		}

		if err := os.Remove(s.config.SocketPath); err != nil && !os.IsNotExist(err) {
			s.logger.Debug("failed to remove socket file", "error", err)
		}
	})

	return shutdownErr
}
