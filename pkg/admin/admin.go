// Package admin serves the operator endpoints of a running docroot server:
// health, the worker slot table, Prometheus metrics and a WebSocket feed of
// slot transitions. It listens on its own address, separate from the
// document listener.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/docroot/pkg/pool"
)

// SlotSource reports the worker slots. *pool.Pool implements it.
type SlotSource interface {
	Size() int
	Busy() int
	Snapshot() []pool.Slot
}

// SlotsResponse is the body of GET /slots.
type SlotsResponse struct {
	Workers int         `json:"workers"`
	Busy    int         `json:"busy"`
	Mode    string      `json:"mode"`
	Slots   []pool.Slot `json:"slots"`
}

// Server is the admin HTTP server.
type Server struct {
	addr     string
	slots    SlotSource
	feed     *SlotFeed
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithSlots sets the slot source. Without one the server reports
// synchronous mode.
func WithSlots(src SlotSource) Option {
	return func(s *Server) {
		s.slots = src
	}
}

// WithFeed enables GET /slots/ws.
func WithFeed(feed *SlotFeed) Option {
	return func(s *Server) {
		s.feed = feed
	}
}

// WithGatherer sets the registry exposed on /metrics.
// Default: prometheus.DefaultGatherer
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates an admin server for addr.
func New(addr string, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default().With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the admin router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/slots", s.handleSlots)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.feed != nil {
		r.Get("/slots/ws", s.feed.HandleWebSocket)
	}
	return r
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	resp := SlotsResponse{Mode: "sync", Slots: []pool.Slot{}}
	if s.slots != nil && s.slots.Size() > 0 {
		resp.Mode = "pool"
		resp.Workers = s.slots.Size()
		resp.Busy = s.slots.Busy()
		resp.Slots = s.slots.Snapshot()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("slots response failed", "error", err)
	}
}

// Start serves the admin endpoints until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.feed != nil {
		go s.feed.Run(ctx)
	}

	s.logger.Info("admin server starting", "address", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop closes the feed and shuts the HTTP server down.
func (s *Server) Stop() {
	if s.feed != nil {
		s.feed.Close()
	}
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}
