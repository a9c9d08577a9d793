package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// DefaultAddr is where the HTTP surface listens when none is configured
const DefaultAddr = "127.0.0.1:9721"

// Server exposes metrics, health and the live event feed over HTTP
type Server struct {
	addr   string
	feed   *Feed
	mux    *chi.Mux
	http   *http.Server
	logger zerolog.Logger

	listener net.Listener
}

// NewServer creates a server for addr streaming events from feed
func NewServer(addr string, feed *Feed) *Server {
	if addr == "" {
		addr = DefaultAddr
	}

	s := &Server{
		addr:   addr,
		feed:   feed,
		mux:    chi.NewRouter(),
		logger: log.WithComponent("api"),
	}

	s.mux.Use(middleware.Recoverer)
	s.mux.Use(readOnly)
	s.mux.Use(instrument)

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.Get("/health", metrics.HealthHandler())
	s.mux.Get("/ready", metrics.ReadyHandler())
	s.mux.Get("/live", metrics.LivenessHandler())
	s.mux.Handle("/events", feed)

	s.http = &http.Server{
		Handler:     s.mux,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	return nil
}

// Addr returns the bound address, or the configured one before Start
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops accepting requests and waits for in-flight ones. Feed
// clients are disconnected.
func (s *Server) Shutdown(ctx context.Context) error {
	s.feed.Close()
	return s.http.Shutdown(ctx)
}
