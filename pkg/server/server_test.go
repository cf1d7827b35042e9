package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	docerrors "github.com/vango-dev/docroot/internal/errors"
	"github.com/vango-dev/docroot/internal/metrics"
	"github.com/vango-dev/docroot/pkg/handler"
	"github.com/vango-dev/docroot/pkg/pool"
	"github.com/vango-dev/docroot/pkg/static"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// blockingHandler holds every connection until release is closed.
type blockingHandler struct {
	started chan struct{}
	release chan struct{}
	served  atomic.Int32
}

func newBlockingHandler() *blockingHandler {
	return &blockingHandler{
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (h *blockingHandler) ServeConn(ctx context.Context, s *handler.Session) handler.Result {
	defer s.Conn.Close()
	h.started <- struct{}{}
	<-h.release
	h.served.Add(1)
	return handler.ResultOK
}

func (h *blockingHandler) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-h.started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not start")
	}
}

func listen(t *testing.T, workers int, h ConnHandler, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger())}, opts...)
	srv := New(&ServerConfig{BindAddress: "127.0.0.1", Workers: workers}, h, opts...)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	return srv
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func counterWithLabel(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNew_PoolOnlyFromTwoWorkers(t *testing.T) {
	for workers, pooled := range map[int]bool{0: false, 1: false, 2: true, 8: true} {
		srv := New(&ServerConfig{Workers: workers}, newBlockingHandler(), WithLogger(testLogger()))
		if got := srv.Pool() != nil; got != pooled {
			t.Errorf("workers=%d: pooled = %v, want %v", workers, got, pooled)
		}
		if pooled && srv.Pool().Size() != workers {
			t.Errorf("workers=%d: pool size = %d", workers, srv.Pool().Size())
		}
	}
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	srv := New(nil, newBlockingHandler())
	cfg := srv.Config()
	if cfg.Port != 8080 || cfg.Workers != 4 {
		t.Fatalf("config = %+v", cfg)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		cfg  ServerConfig
		code string
	}{
		{ServerConfig{Port: 80}, ""},
		{ServerConfig{Port: -1}, "E122"},
		{ServerConfig{Port: 70000}, "E122"},
		{ServerConfig{Port: 80, Workers: -2}, "E123"},
	}
	for _, tt := range tests {
		err := tt.cfg.ValidateConfig()
		if tt.code == "" {
			if err != nil {
				t.Errorf("%+v: unexpected error %v", tt.cfg, err)
			}
			continue
		}
		if !docerrors.HasCode(err, tt.code) {
			t.Errorf("%+v: err = %v, want %s", tt.cfg, err, tt.code)
		}
	}
}

func TestListen_Errors(t *testing.T) {
	h := newBlockingHandler()
	srv := listen(t, 0, h)
	defer srv.Shutdown()

	if err := srv.Listen(); !docerrors.HasCode(err, "E103") {
		t.Fatalf("second Listen err = %v, want E103", err)
	}

	port := srv.Addr().(*net.TCPAddr).Port
	other := New(&ServerConfig{BindAddress: "127.0.0.1", Port: port}, h, WithLogger(testLogger()))
	if err := other.Listen(); !docerrors.HasCode(err, "E100") {
		t.Fatalf("Listen on used port err = %v, want E100", err)
	}
}

func TestRunOnce_BeforeListen(t *testing.T) {
	srv := New(&ServerConfig{}, newBlockingHandler(), WithLogger(testLogger()))
	if err := srv.RunOnce(context.Background()); !docerrors.HasCode(err, "E101") {
		t.Fatalf("err = %v, want E101", err)
	}
	if err := srv.Shutdown(); !docerrors.HasCode(err, "E101") {
		t.Fatalf("Shutdown err = %v, want E101", err)
	}
}

func TestRunOnce_SynchronousWithoutPool(t *testing.T) {
	h := newBlockingHandler()
	close(h.release)
	srv := listen(t, 1, h)
	defer srv.Shutdown()

	dial(t, srv)
	if err := srv.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	// Served before RunOnce returned.
	if h.served.Load() != 1 {
		t.Fatalf("served = %d, want 1", h.served.Load())
	}
}

func TestRunOnce_SaturatedPoolServesSynchronously(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newBlockingHandler()
	srv := listen(t, 4, h, WithMetrics(metrics.New(metrics.WithRegistry(reg))))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		dial(t, srv)
		if err := srv.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce %d: %v", i, err)
		}
		h.waitStarted(t)
	}
	if busy := srv.Pool().Busy(); busy != 4 {
		t.Fatalf("busy = %d, want 4", busy)
	}

	dial(t, srv)
	done := make(chan error, 1)
	go func() { done <- srv.RunOnce(ctx) }()
	h.waitStarted(t)

	select {
	case err := <-done:
		t.Fatalf("RunOnce returned (%v) while serving the fifth connection", err)
	case <-time.After(50 * time.Millisecond):
	}
	if busy := srv.Pool().Busy(); busy != 4 {
		t.Fatalf("busy = %d while fifth connection is served inline", busy)
	}

	close(h.release)
	if err := <-done; err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.served.Load() != 5 {
		t.Fatalf("served = %d, want 5", h.served.Load())
	}

	if got := counterWithLabel(t, reg, "docroot_dispatched_total", "mode", metrics.ModeWorker); got != 4 {
		t.Errorf("worker dispatches = %v, want 4", got)
	}
	if got := counterWithLabel(t, reg, "docroot_dispatched_total", "mode", metrics.ModeSync); got != 1 {
		t.Errorf("sync dispatches = %v, want 1", got)
	}
}

func TestShutdown_WaitsForBusySlots(t *testing.T) {
	h := newBlockingHandler()
	srv := listen(t, 2, h)

	dial(t, srv)
	if err := srv.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	h.waitStarted(t)

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown() }()

	select {
	case <-done:
		t.Fatal("Shutdown returned while a slot was busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(h.release)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return after release")
	}
	if srv.Pool().Busy() != 0 {
		t.Fatalf("busy = %d after shutdown", srv.Pool().Busy())
	}
}

func TestShutdown_IdleReturnsAndClosesListener(t *testing.T) {
	srv := listen(t, 4, newBlockingHandler())
	addr := srv.Addr().String()

	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if err := srv.RunOnce(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("RunOnce after Shutdown err = %v, want ErrClosed", err)
	}
	if conn, err := net.Dial("tcp", addr); err == nil {
		conn.Close()
		t.Fatal("listener still accepting after Shutdown")
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	h := newBlockingHandler()
	close(h.release)
	srv := listen(t, 2, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	for i := 0; i < 3; i++ {
		conn := dial(t, srv)
		// The handler closes the connection once served.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, err := io.ReadAll(conn); err != nil {
			t.Fatalf("read: %v", err)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}

	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if h.served.Load() != 3 {
		t.Fatalf("served = %d, want 3", h.served.Load())
	}
}

func TestServe_StaticFileEndToEnd(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>hi</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	h := handler.New(handler.Config{Root: root}, handler.WithLogger(testLogger()))

	var transitions atomic.Int32
	srv := listen(t, 4, h, WithPoolOptions(pool.WithStatusHook(func(int, pool.Status) {
		transitions.Add(1)
	})))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	conn := dial(t, srv)
	if _, err := io.WriteString(conn, "GET / HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	body, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := static.Header(11, "text/html") + "<h1>hi</h1>"; string(body) != want {
		t.Fatalf("response = %q, want %q", body, want)
	}

	cancel()
	<-done
	if err := srv.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if transitions.Load() != 2 {
		t.Fatalf("status transitions = %d, want 2", transitions.Load())
	}
}
