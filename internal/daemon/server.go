package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/api"
)

// Server manages the HTTP server lifecycle for the daemon.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer binds the configured address (or uses Params.Listener) and mounts the API.
func NewServer(p Params, logger *zap.Logger, services *api.Services) (*Server, error) {
	listener := p.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", p.Server.Addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", p.Server.Addr, err)
		}
	}

	srv := &http.Server{
		Handler:           api.NewHandler(*services, p.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(services.Realtime.Close)

	return &Server{
		httpServer: srv,
		listener:   listener,
		logger:     logger,
	}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown. Realtime websockets are closed through
// the shutdown hook since Shutdown does not track hijacked connections.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown incomplete", zap.Error(err))
		_ = s.httpServer.Close()
	}
}
