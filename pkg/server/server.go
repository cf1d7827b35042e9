package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	docerrors "github.com/vango-dev/docroot/internal/errors"
	"github.com/vango-dev/docroot/internal/metrics"
	"github.com/vango-dev/docroot/pkg/cgi"
	"github.com/vango-dev/docroot/pkg/handler"
	"github.com/vango-dev/docroot/pkg/pool"
)

// ConnHandler serves one session and closes its connection.
type ConnHandler interface {
	ServeConn(ctx context.Context, s *handler.Session) handler.Result
}

// Server accepts connections on a single listener and dispatches them.
type Server struct {
	config      *ServerConfig
	handler     ConnHandler
	interpreter *cgi.Interpreter
	metrics     *metrics.Metrics
	logger      *slog.Logger

	// nil when the pool is disabled
	pool     *pool.Pool
	poolOpts []pool.Option

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	stopping bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithInterpreter sets the interpreter attached to every session.
func WithInterpreter(interp *cgi.Interpreter) Option {
	return func(s *Server) {
		s.interpreter = interp
	}
}

// WithPoolOptions passes extra options to the worker pool.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(s *Server) {
		s.poolOpts = append(s.poolOpts, opts...)
	}
}

// New creates a Server. A nil config uses DefaultServerConfig.
func New(config *ServerConfig, h ConnHandler, opts ...Option) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}

	s := &Server{
		config:  config.Clone(),
		handler: h,
		logger:  slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.config.pooled() {
		poolOpts := append([]pool.Option{pool.WithStatusHook(s.trackBusy)}, s.poolOpts...)
		s.pool = pool.New(s.config.Workers, poolOpts...)
		s.metrics.SetPoolSize(s.pool.Size())
	}
	return s
}

func (s *Server) trackBusy(int, pool.Status) {
	s.metrics.SetBusySlots(s.pool.Busy())
}

// Config returns a copy of the server configuration.
func (s *Server) Config() *ServerConfig {
	return s.config.Clone()
}

// Pool returns the worker pool, or nil when connections are served
// synchronously.
func (s *Server) Pool() *pool.Pool {
	return s.pool
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Listen validates the config and binds the listening socket.
func (s *Server) Listen() error {
	if err := s.config.ValidateConfig(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.listener != nil {
		return docerrors.New("E103")
	}

	addr := net.JoinHostPort(s.config.BindAddress, strconv.Itoa(s.config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return docerrors.New("E100").
			WithDetail(fmt.Sprintf("could not bind %s", addr)).
			WithSuggestion("Pick another port or run with the privileges the port requires.").
			Wrap(err)
	}
	s.listener = ln

	if !s.config.Silent {
		s.logger.Info("listening", "address", ln.Addr().String(), "workers", s.config.Workers)
	}
	return nil
}

// RunOnce accepts one connection and dispatches it. It returns once the
// connection is handed to a worker, or once it has been served when no
// worker is free.
func (s *Server) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	ln, closed := s.listener, s.closed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if ln == nil {
		return docerrors.New("E101")
	}

	conn, err := ln.Accept()
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("server: accept: %w", err)
	}

	s.metrics.ConnectionAccepted()
	sess := handler.NewSession(conn, s.interpreter)
	if !s.config.Silent {
		s.logger.Info("new connection", "peer", sess.Peer)
	}

	s.dispatch(ctx, sess)
	return nil
}

func (s *Server) dispatch(ctx context.Context, sess *handler.Session) {
	// In-flight sessions are drained by Shutdown, never canceled.
	ctx = context.WithoutCancel(ctx)

	if s.pool != nil {
		if id, ok := s.pool.TryAcquire(); ok {
			if s.pool.Spawn(id, func() { s.work(ctx, id, sess) }) {
				s.metrics.Dispatched(metrics.ModeWorker)
				return
			}
		}
	}

	s.metrics.Dispatched(metrics.ModeSync)
	s.handler.ServeConn(ctx, sess)
}

func (s *Server) work(ctx context.Context, id int, sess *handler.Session) {
	if !s.config.Silent {
		s.logger.Debug("worker enter", "slot", id)
	}
	s.handler.ServeConn(ctx, sess)
	if !s.config.Silent {
		s.logger.Debug("worker leave", "slot", id)
	}
}

// Serve calls RunOnce until ctx is done or the server is shut down.
// It returns nil when ctx ends the loop. The listener stays open so
// Shutdown can drain first.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, s.interruptAccept)
	defer stop()

	var delay time.Duration
	for {
		err := s.RunOnce(ctx)
		if err == nil {
			delay = 0
			continue
		}
		if ctx.Err() != nil {
			s.resumeAccept()
			return nil
		}
		if errors.Is(err, ErrClosed) || docerrors.HasCode(err, "E101") {
			return err
		}

		// Transient accept failures (fd exhaustion and the like).
		if delay == 0 {
			delay = 5 * time.Millisecond
		} else {
			delay *= 2
		}
		if delay > time.Second {
			delay = time.Second
		}
		s.logger.Warn("accept failed", "error", err, "retry_in", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		}
	}
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// interruptAccept unblocks a pending Accept without closing the listener.
func (s *Server) interruptAccept() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopping = true
	if d, ok := s.listener.(deadliner); ok {
		_ = d.SetDeadline(time.Unix(1, 0))
	}
}

func (s *Server) resumeAccept() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopping {
		return
	}
	s.stopping = false
	if d, ok := s.listener.(deadliner); ok {
		_ = d.SetDeadline(time.Time{})
	}
}

// Run binds the listener if needed, serves until SIGINT, SIGTERM or ctx
// cancellation, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := s.Serve(ctx)
	if ctx.Err() != nil {
		s.logger.Info("shutting down...")
	}
	if shutdownErr := s.Shutdown(); err == nil {
		err = shutdownErr
	}
	return err
}

// Shutdown waits for every worker slot to go Idle, joins the workers and
// closes the listener. Call it after Serve returns. It cannot be canceled.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return docerrors.New("E101")
	}

	if s.pool != nil {
		if busy := s.pool.Busy(); busy > 0 {
			s.logger.Info("waiting for workers", "busy", busy)
		}
		s.pool.Drain()
		s.pool.Shutdown()
	}

	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}
