// Package server exposes the signaling hub over HTTP: the /ws endpoint plus
// health, room listing and Prometheus metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/BioHazard786/Warpcall/internal/config"
	"github.com/BioHazard786/Warpcall/internal/metrics"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

const shutdownTimeout = 5 * time.Second

// Server is the signaling HTTP server.
type Server struct {
	Hub *signaling.Hub

	cfg      *config.ServerConfig
	log      *slog.Logger
	registry *prometheus.Registry
	http     *http.Server
}

// New builds a Server with its own metrics registry.
func New(cfg *config.ServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := signaling.NewHub(signaling.Options{
		RoomCapacity:    cfg.RoomCapacity,
		SendBuffer:      cfg.SendBuffer,
		MaxMessageBytes: cfg.MaxMessageBytes,
		Logger:          log,
		Metrics:         metrics.New(reg),
	})

	s := &Server{
		Hub:      hub,
		cfg:      cfg,
		log:      log.With("component", "server"),
		registry: reg,
	}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router serving every endpoint.
func (s *Server) Handler() http.Handler {
	return NewRouter(s.Hub, s.registry)
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully and closes every websocket.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("signaling server listening", "addr", ln.Addr().String(), "capacity", s.cfg.RoomCapacity)
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by http.Server.
	s.Hub.Shutdown()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("signaling server stopped")
	return nil
}
