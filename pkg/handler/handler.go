package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/docroot/internal/metrics"
	"github.com/vango-dev/docroot/pkg/cgi"
	"github.com/vango-dev/docroot/pkg/mediatype"
	"github.com/vango-dev/docroot/pkg/request"
	"github.com/vango-dev/docroot/pkg/static"
)

// Default tracer name.
const defaultTracerName = "docroot"

const (
	// DefaultTriggerExtension routes requests to the interpreter.
	DefaultTriggerExtension = "php"

	// DefaultIndexScript is delegated for root requests when possible.
	DefaultIndexScript = "index.php"
)

// DefaultIndexFiles are tried in order for root requests.
var DefaultIndexFiles = []string{"index.htm", "index.html", "main.html"}

// Result is the outcome of serving one connection.
type Result int

const (
	ResultOK Result = iota
	ResultBadPath
	ResultEmptyPath
	ResultUnknownError
)

// String returns the result name used in logs and metrics.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultBadPath:
		return "bad_path"
	case ResultEmptyPath:
		return "empty_path"
	case ResultUnknownError:
		return "unknown_error"
	default:
		return "invalid"
	}
}

// Config configures a Handler.
type Config struct {
	// Root is the document root without a trailing slash.
	Root string

	// TriggerExtension selects interpreter delegation (default: "php").
	TriggerExtension string

	// IndexScript is the script delegated for root requests (default: "index.php").
	IndexScript string

	// IndexFiles are streamed for root requests, first existing wins.
	// Default: DefaultIndexFiles
	IndexFiles []string

	// ChunkSize is the static body chunk size (default: 4096).
	ChunkSize int

	// MaxLineBytes bounds the buffered request line (see request.Options).
	MaxLineBytes int

	// ReadTimeout sets a read deadline on the connection. Zero means none.
	ReadTimeout time.Duration

	// Silent suppresses per-connection debug logging. Stream and delegation
	// failures are still logged.
	Silent bool
}

func (c *Config) applyDefaults() {
	if c.TriggerExtension == "" {
		c.TriggerExtension = DefaultTriggerExtension
	}
	if c.IndexScript == "" {
		c.IndexScript = DefaultIndexScript
	}
	if c.IndexFiles == nil {
		c.IndexFiles = append([]string(nil), DefaultIndexFiles...)
	}
}

// Session is one accepted connection and the interpreter settings it was
// accepted with. It is owned by whoever serves it until ServeConn returns.
type Session struct {
	Conn        net.Conn
	Peer        string
	Interpreter *cgi.Interpreter
}

// NewSession wraps conn in a Session.
func NewSession(conn net.Conn, interp *cgi.Interpreter) *Session {
	s := &Session{Conn: conn, Interpreter: interp}
	if addr := conn.RemoteAddr(); addr != nil {
		s.Peer = addr.String()
	}
	return s
}

// Handler serves connections against a document root.
type Handler struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithTracer sets the tracer. By default the global provider is used.
func WithTracer(tracer trace.Tracer) Option {
	return func(h *Handler) {
		h.tracer = tracer
	}
}

// New creates a Handler.
func New(config Config, opts ...Option) *Handler {
	config.applyDefaults()
	h := &Handler{
		config: config,
		logger: slog.Default().With("component", "handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tracer == nil {
		h.tracer = otel.Tracer(defaultTracerName)
	}
	return h
}

// Config returns the handler configuration with defaults applied.
func (h *Handler) Config() Config {
	return h.config
}

// ServeConn serves s and closes its connection.
func (h *Handler) ServeConn(ctx context.Context, s *Session) (result Result) {
	start := time.Now()
	ctx, span := h.tracer.Start(ctx, "docroot.serve",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("net.peer.addr", s.Peer)),
	)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while serving connection", "peer", s.Peer, "panic", r)
			span.RecordError(fmt.Errorf("panic: %v", r))
			result = ResultUnknownError
		}
		s.Conn.Close()

		span.SetAttributes(attribute.String("docroot.result", result.String()))
		if result == ResultUnknownError {
			span.SetStatus(codes.Error, result.String())
		}
		span.End()

		h.metrics.Handled(result.String(), time.Since(start))
	}()

	if h.config.ReadTimeout > 0 {
		if err := s.Conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
			h.debug("read deadline not set", "peer", s.Peer, "error", err)
		}
	}

	return h.serve(ctx, s, span)
}

func (h *Handler) serve(ctx context.Context, s *Session, span trace.Span) Result {
	line, err := request.Parse(s.Conn, request.Options{MaxLineBytes: h.config.MaxLineBytes})
	switch {
	case errors.Is(err, request.ErrBadPath):
		h.debug("malformed request path", "peer", s.Peer)
		h.notFound(s)
		return ResultBadPath
	case errors.Is(err, request.ErrEmptyPath):
		return ResultEmptyPath
	case err != nil:
		h.debug("request read failed", "peer", s.Peer, "error", err)
		return ResultUnknownError
	case line == nil:
		// Peer sent nothing.
		return ResultOK
	}

	h.debug("request", "peer", s.Peer, "path", line.Path)
	span.SetAttributes(attribute.String("docroot.path", line.Path))

	if line.IsRoot() {
		return h.serveRoot(ctx, s, span)
	}
	return h.servePath(ctx, s, span, line.Path)
}

func (h *Handler) servePath(ctx context.Context, s *Session, span trace.Span, rel string) Result {
	root := h.config.Root
	mt := mediatype.Resolve(rel)
	span.SetAttributes(attribute.String("docroot.media_type", mt.ContentType))

	if ext, ok := mediatype.Extension(rel); ok && ext == h.config.TriggerExtension {
		script := static.Join(root, rel)
		if s.Interpreter.Configured() && static.IsSafe(root, rel) &&
			static.FileExists(script) && s.Interpreter.Available() {
			return h.delegate(ctx, s, span, script)
		}
		h.notFound(s)
		return ResultBadPath
	}

	if !static.IsSafe(root, rel) {
		h.notFound(s)
		return ResultBadPath
	}
	return h.stream(s, static.Join(root, rel))
}

func (h *Handler) serveRoot(ctx context.Context, s *Session, span trace.Span) Result {
	root := h.config.Root

	if s.Interpreter.Configured() {
		script := static.Join(root, h.config.IndexScript)
		if static.FileExists(script) && s.Interpreter.Available() {
			return h.delegate(ctx, s, span, script)
		}
	}

	for _, name := range h.config.IndexFiles {
		file := static.Join(root, name)
		if static.FileExists(file) {
			span.SetAttributes(attribute.String("docroot.index", name))
			return h.stream(s, file)
		}
	}
	return ResultEmptyPath
}

func (h *Handler) stream(s *Session, file string) Result {
	sent, err := static.Stream(s.Conn, file, static.Options{ChunkSize: h.config.ChunkSize})
	h.metrics.BytesSent(sent)
	if err != nil {
		h.logger.Warn("stream failed", "peer", s.Peer, "file", file, "sent", sent, "error", err)
		return ResultUnknownError
	}
	return ResultOK
}

func (h *Handler) delegate(ctx context.Context, s *Session, span trace.Span, script string) Result {
	span.SetAttributes(attribute.String("docroot.script", script))

	err := s.Interpreter.Delegate(ctx, s.Conn, script)
	switch {
	case err == nil:
		h.metrics.Delegated("ok")
		return ResultOK
	case errors.Is(err, cgi.ErrExit):
		h.metrics.Delegated("exit_error")
		h.logger.Warn("interpreter failed", "peer", s.Peer, "script", script, "error", err)
		return ResultOK
	default:
		h.metrics.Delegated("invocation_failed")
		h.logger.Warn("delegation failed", "peer", s.Peer, "script", script, "error", err)
		span.RecordError(err)
		return ResultUnknownError
	}
}

func (h *Handler) notFound(s *Session) {
	if err := static.NotFound(s.Conn); err != nil {
		h.debug("not-found write failed", "peer", s.Peer, "error", err)
	}
}

// debug logs per-connection detail unless the handler is silent.
func (h *Handler) debug(msg string, args ...any) {
	if h.config.Silent {
		return
	}
	h.logger.Debug(msg, args...)
}
