// Package api provides the HTTP server for the pre-care intake service.
//
// It exposes session creation, the per-message intake turn, session lookup, the
// rule-based summary, a health check and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/BTreeMap/precare/internal/flow"
	"github.com/BTreeMap/precare/internal/metrics"
	"github.com/BTreeMap/precare/internal/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Defaults for the API server.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultDedupRetention is how long inbound message ids are remembered.
	DefaultDedupRetention = 24 * time.Hour
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	ShutdownTimeout time.Duration
	DedupRetention  time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithDedupRetention sets how long inbound message ids are kept for dedup.
func WithDedupRetention(d time.Duration) Option {
	return func(o *Opts) { o.DedupRetention = d }
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	st       store.Store
	dedup    store.DedupRepo // nil when the backend has no dedup table
	engine   *flow.Engine
	sessions flow.StateManager
	registry *prometheus.Registry
	opts     Opts
	newID    func() string
	now      func() time.Time
}

// NewServer builds a Server over st. Dedup is enabled when st implements
// store.DedupRepo.
func NewServer(st store.Store, opts ...Option) *Server {
	cfg := Opts{
		Addr:            DefaultAddr,
		ShutdownTimeout: DefaultShutdownTimeout,
		DedupRetention:  DefaultDedupRetention,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine := flow.NewEngine(st, flow.WithRecorder(metrics.NewPrometheusRecorder(reg)))
	s := &Server{
		st:       st,
		engine:   engine,
		sessions: engine.Sessions(),
		registry: reg,
		opts:     cfg,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	if d, ok := st.(store.DedupRepo); ok {
		s.dedup = d
	} else {
		slog.Warn("Server.NewServer: store does not support inbound dedup; message_id will be ignored")
	}
	return s
}

// Run opens the configured store, serves the API until SIGINT or SIGTERM, then
// shuts down gracefully and closes the store.
func Run(storeOpts []store.Option, apiOpts []Option) error {
	st, err := store.Open(storeOpts...)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			slog.Error("Server.Run: failed to close store", "error", cerr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewServer(st, apiOpts...).Serve(ctx)
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.pruneDedupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Serve: precare API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Server.Serve: shutting down", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}

// pruneDedupLoop drops expired inbound message ids once per retention/24.
func (s *Server) pruneDedupLoop(ctx context.Context) {
	if s.dedup == nil || s.opts.DedupRetention <= 0 {
		return
	}
	interval := s.opts.DedupRetention / 24
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneDedup()
		}
	}
}

func (s *Server) pruneDedup() {
	n, err := s.dedup.PruneInbound(s.now().Add(-s.opts.DedupRetention))
	if err != nil {
		slog.Error("Server.pruneDedup: prune failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("Server.pruneDedup: pruned inbound records", "count", n)
	}
}
