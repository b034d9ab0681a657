package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/gophmesh/internal/metrics"
	"github.com/iudanet/gophmesh/internal/tracker/middleware"
)

// Config настройки HTTP сервера трекера
type Config struct {
	Addr            string
	Version         string
	RateLimit       int
	RateWindow      time.Duration
	ShutdownTimeout time.Duration
}

// Server is the tracker HTTP server with its hub
type Server struct {
	cfg     Config
	hub     *Hub
	limiter *middleware.RateLimiter
	http    *http.Server
	logger  *slog.Logger
}

// NewServer wires the router: relay, health and metrics endpoints
func NewServer(cfg Config, logger *slog.Logger, reg *prometheus.Registry) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 60
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	s := &Server{
		cfg:     cfg,
		hub:     NewHub(logger, m),
		limiter: middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow, logger),
		logger:  logger,
	}

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Router(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the mux router. Exposed for httptest
func (s *Server) Router(reg *prometheus.Registry) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logging(s.logger, "/api/v1/health", "/metrics"))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", NewHealthHandler(s.hub, s.cfg.Version, s.logger).Health).Methods(http.MethodGet)

	relay := api.PathPrefix("/feeds").Subrouter()
	relay.Use(s.limiter.Middleware)
	relay.HandleFunc("/{feed}/ws", NewRelayHandler(s.hub, s.logger).Relay).Methods(http.MethodGet)

	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

// Hub returns the server hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run starts the hub and serves HTTP until ctx is done
func (s *Server) Run(ctx context.Context) error {
	hubCtx, cancelHub := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHub()
	go s.hub.Run(hubCtx)
	defer s.limiter.Stop()

	errC := make(chan error, 1)
	go func() {
		s.logger.Info("Tracker listening", "addr", s.cfg.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	select {
	case err, ok := <-errC:
		if ok {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down tracker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	// websocket соединения не отслеживаются Shutdown: их закрывает остановка hub
	cancelHub()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
