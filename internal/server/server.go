package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/relay"
)

// Server runs the relay hub behind an HTTP listener.
type Server struct {
	Hub *relay.Hub

	cfg    config.Relay
	logger *slog.Logger
	http   *http.Server
}

// New creates the hub and its metrics and wires them to the HTTP routes.
func New(cfg config.Relay, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := relay.NewHub(
		relay.WithLogger(logger),
		relay.WithMetrics(relay.NewMetrics(reg)),
	)

	return &Server{
		Hub:    hub,
		cfg:    cfg,
		logger: logger,
		http: &http.Server{
			Addr:              cfg.Listen,
			Handler:           Routes(hub, cfg, reg, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("signaling server listening", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Shutdown stops accepting requests, then closes every websocket through
// the hub. Hijacked connections are not tracked by http.Server, so the hub
// is what ends them.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.Hub.Close()
	return err
}
