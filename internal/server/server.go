// Package server exposes discovery, collection and stored history over HTTP.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/powerhive/minerprobe/internal/metrics"
	"github.com/powerhive/minerprobe/pkg/collector"
	"github.com/powerhive/minerprobe/pkg/database"
	"github.com/powerhive/minerprobe/pkg/discovery"
	"github.com/powerhive/minerprobe/pkg/miner"
)

// Detector identifies and reads a single host.
type Detector interface {
	Identify(ctx context.Context, host string) (*discovery.Identity, error)
	Collect(ctx context.Context, host string, opts ...collector.Option) (*miner.MinerData, *discovery.Identity, error)
}

// Scanner scans an address target.
type Scanner interface {
	Scan(ctx context.Context, target string) (*discovery.ScanResult, error)
}

// Server is the HTTP API.
type Server struct {
	detector  Detector
	scanner   Scanner
	repo      database.Repository
	metrics   *metrics.Metrics
	logger    *slog.Logger
	accessLog io.Writer

	// scans keeps results in memory when there is no repository.
	mu    sync.RWMutex
	scans map[string]*discovery.ScanResult

	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRepository enables snapshot history and persistent scans.
func WithRepository(repo database.Repository) Option {
	return func(s *Server) {
		s.repo = repo
	}
}

// WithMetrics enables /metrics and request instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithAccessLog sets where the combined access log is written (default stdout).
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) {
		s.accessLog = w
	}
}

// New creates a server.
func New(detector Detector, scanner Scanner, opts ...Option) *Server {
	s := &Server{
		detector:  detector,
		scanner:   scanner,
		logger:    slog.Default(),
		accessLog: os.Stdout,
		scans:     make(map[string]*discovery.ScanResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "server"))
	return s
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/health", s.wrap("/health", s.handleHealth)).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.Handle("/miners/{ip}", s.wrap("/miners/{ip}", s.handleMiner)).Methods(http.MethodGet)
	r.Handle("/miners/{ip}/detect", s.wrap("/miners/{ip}/detect", s.handleDetect)).Methods(http.MethodGet)
	r.Handle("/scan", s.wrap("/scan", s.handleScan)).Methods(http.MethodPost)
	r.Handle("/scan/stream", s.wrap("/scan/stream", s.handleScanStream)).Methods(http.MethodGet)
	r.Handle("/scans", s.wrap("/scans", s.handleListScans)).Methods(http.MethodGet)
	r.Handle("/scans/{id}", s.wrap("/scans/{id}", s.handleGetScan)).Methods(http.MethodGet)
	r.Handle("/history/{mac}", s.wrap("/history/{mac}", s.handleHistory)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

// Handler returns the router with access logging and panic recovery.
func (s *Server) Handler() http.Handler {
	h := handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(s.Router())
	return handlers.LoggingHandler(s.accessLog, h)
}

func (s *Server) wrap(route string, h http.HandlerFunc) http.Handler {
	if s.metrics == nil {
		return h
	}
	return s.metrics.WrapHandler(route, h)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logger.Info("listening", slog.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
