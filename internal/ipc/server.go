package ipc

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/feschber/lan-mouse/internal/session"
)

// DefaultAddr is the loopback-only address the daemon listens on for
// IPC (spec.md §6: the CLI and tray talk to the running daemon on the
// same host only, never over the network).
const DefaultAddr = "127.0.0.1:4243"

// Server hosts the hub's websocket endpoint, mirroring the teacher's
// api.Server (HTTP mux, listener created before Serve, errors logged
// but never fatal to the rest of the process).
type Server struct {
	hub *Hub
	srv *http.Server
}

// NewServer wires a Hub forwarding commands onto commands.
func NewServer(commands chan<- session.Command) *Server {
	hub := NewHub(commands)
	mux := http.NewServeMux()
	mux.HandleFunc("/ipc", hub.ServeHTTP)
	return &Server{hub: hub, srv: &http.Server{Handler: mux}}
}

// Hub exposes the underlying hub so the session's callbacks can be
// wired to PublishPeerState/PublishSessionState/PublishError.
func (s *Server) Hub() *Hub { return s.hub }

// Run starts the hub goroutine and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ipc: listen %s: %w", addr, err)
	}

	go s.hub.Run()

	go func() {
		<-ctx.Done()
		_ = s.srv.Close()
	}()

	log.Printf("ipc: listening on %s", addr)
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ipc: serve: %w", err)
	}
	return nil
}
