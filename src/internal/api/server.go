package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/maksimkurb/keen-relay/src/internal/log"
)

// Server represents the API server
type Server struct {
	bindAddr string
	handler  http.Handler
}

// NewServer creates a new API server
func NewServer(bindAddr string, deps Dependencies) *Server {
	return &Server{
		bindAddr: bindAddr,
		handler:  NewRouter(deps),
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully. Run may be
// called again after it returns.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.bindAddr, err)
	}
	log.Infof("[API] Starting server on %s", listener.Addr())
	log.Infof("[API] Example: curl http://%s/api/v1/status", listener.Addr())

	// Request contexts are cancelled on shutdown, which also ends hijacked
	// WebSocket streams.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	httpServer := &http.Server{
		Handler:     s.handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream is long-lived and sets
		// per-message deadlines itself.
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	httpServer.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Infof("[API] Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
