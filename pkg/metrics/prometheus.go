package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dbehnke/ysf-gateway/pkg/logger"
)

// ServerConfig holds the metrics endpoint configuration
type ServerConfig struct {
	Host string
	Port int
	Path string
}

// Server serves the collector over HTTP
type Server struct {
	config    ServerConfig
	collector *Collector
	log       *logger.Logger
	server    *http.Server
	addr      chan net.Addr
}

// NewServer creates a metrics server
func NewServer(config ServerConfig, collector *Collector, log *logger.Logger) *Server {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	return &Server{
		config:    config,
		collector: collector,
		log:       log.WithComponent("metrics"),
		addr:      make(chan net.Addr, 1),
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(s.config.Path, s.collector.Handler())

	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr <- listener.Addr()

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.log.Info("Starting metrics server",
		logger.String("addr", listener.Addr().String()),
		logger.String("path", s.config.Path))

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown error: %w", err)
		}
		return nil
	case err := <-errChan:
		return err
	}
}

// Addr waits for the listening address once Start has bound it
func (s *Server) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case a := <-s.addr:
		s.addr <- a
		return a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
