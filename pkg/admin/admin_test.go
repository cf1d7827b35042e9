package admin

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/docroot/internal/metrics"
	"github.com/vango-dev/docroot/pkg/pool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, New(":0", WithLogger(testLogger())).Handler(), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestSlots_Pool(t *testing.T) {
	p := pool.New(3)
	p.SetStatus(1, pool.Busy)

	rec := get(t, New(":0", WithSlots(p), WithLogger(testLogger())).Handler(), "/slots")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q", ct)
	}

	var resp SlotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Mode != "pool" || resp.Workers != 3 || resp.Busy != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if len(resp.Slots) != 3 || resp.Slots[1].State != "busy" || resp.Slots[0].State != "idle" {
		t.Fatalf("slots = %+v", resp.Slots)
	}
}

func TestSlots_Synchronous(t *testing.T) {
	var p *pool.Pool
	for name, srv := range map[string]*Server{
		"no source": New(":0", WithLogger(testLogger())),
		"nil pool":  New(":0", WithSlots(p), WithLogger(testLogger())),
	} {
		rec := get(t, srv.Handler(), "/slots")
		var resp SlotsResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if resp.Mode != "sync" || resp.Workers != 0 || resp.Slots == nil {
			t.Errorf("%s: resp = %+v", name, resp)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	m.SetPoolSize(4)
	m.ConnectionAccepted()

	rec := get(t, New(":0", WithGatherer(reg), WithLogger(testLogger())).Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"docroot_pool_slots 4", "docroot_connections_total 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestFeedRouteOnlyWithFeed(t *testing.T) {
	rec := get(t, New(":0", WithLogger(testLogger())).Handler(), "/slots/ws")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSlotFeed_SnapshotThenTransitions(t *testing.T) {
	feed := NewSlotFeed(nil)
	p := pool.New(2, pool.WithStatusHook(feed.Notify))
	feed.SetSource(p)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go feed.Run(ctx)

	ts := httptest.NewServer(New(":0", WithFeed(feed), WithLogger(testLogger())).Handler())
	defer ts.Close()
	defer feed.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/slots/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap SlotEvent
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != EventSnapshot || len(snap.Slots) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}

	deadline := time.Now().Add(5 * time.Second)
	for feed.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	id, ok := p.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire failed")
	}

	var ev SlotEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != EventStatus || ev.Slot != id || ev.Status != "busy" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestSlotFeed_NotifyNeverBlocks(t *testing.T) {
	feed := NewSlotFeed(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultFeedBuffer*2; i++ {
			feed.Notify(0, pool.Busy)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify blocked without a running feed")
	}
}

func TestSlotFeed_CloseIsIdempotent(t *testing.T) {
	feed := NewSlotFeed(nil)
	feed.Close()
	feed.Close()
	if feed.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d", feed.ClientCount())
	}
}
