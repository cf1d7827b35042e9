package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/docroot/pkg/pool"
)

// EventType is the kind of message sent on the slot feed.
type EventType string

const (
	// EventSnapshot carries every slot. It is the first message a client gets.
	EventSnapshot EventType = "snapshot"

	// EventStatus carries a single slot transition.
	EventStatus EventType = "status"
)

// SlotEvent is sent to feed clients as JSON.
type SlotEvent struct {
	Type   EventType   `json:"type"`
	Slot   int         `json:"slot"`
	Status string      `json:"status,omitempty"`
	Slots  []pool.Slot `json:"slots,omitempty"`
}

// defaultFeedBuffer is the number of transitions queued before new ones are dropped.
const defaultFeedBuffer = 256

// SlotFeed broadcasts worker slot transitions to WebSocket clients.
type SlotFeed struct {
	source   SlotSource
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	events   chan SlotEvent
	done     chan struct{}
	once     sync.Once
	logger   *slog.Logger
}

// NewSlotFeed creates a feed. source provides the initial snapshot and may be nil.
func NewSlotFeed(source SlotSource) *SlotFeed {
	return &SlotFeed{
		source:  source,
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		events: make(chan SlotEvent, defaultFeedBuffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "admin"),
	}
}

// SetSource sets the snapshot source. Call it before serving clients.
func (f *SlotFeed) SetSource(source SlotSource) {
	f.source = source
}

// Notify queues a slot transition. It never blocks; when the queue is full
// the transition is dropped. Its signature matches pool.WithStatusHook.
func (f *SlotFeed) Notify(id int, s pool.Status) {
	select {
	case f.events <- SlotEvent{Type: EventStatus, Slot: id, Status: s.String()}:
	default:
	}
}

// Run broadcasts queued transitions until ctx is done or the feed is closed.
func (f *SlotFeed) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case ev := <-f.events:
			f.broadcast(ev)
		}
	}
}

// HandleWebSocket upgrades the request, sends a snapshot and keeps the
// client registered until it disconnects.
func (f *SlotFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	snapshot := SlotEvent{Type: EventSnapshot, Slots: []pool.Slot{}}
	if f.source != nil {
		snapshot.Slots = f.source.Snapshot()
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		conn.Close()
		return
	}

	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		conn.Close()
		return
	default:
	}
	f.clients[conn] = true
	f.mu.Unlock()

	// Keep connection alive until client disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	f.mu.Lock()
	delete(f.clients, conn)
	f.mu.Unlock()
	conn.Close()
}

func (f *SlotFeed) broadcast(ev SlotEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	f.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(f.clients))
	for client := range f.clients {
		clients = append(clients, client)
	}
	f.mu.RUnlock()

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			f.logger.Debug("dropping feed client", "error", err)
			f.mu.Lock()
			delete(f.clients, client)
			f.mu.Unlock()
			client.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (f *SlotFeed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close stops Run and disconnects every client.
func (f *SlotFeed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		close(f.done)
		for client := range f.clients {
			client.Close()
			delete(f.clients, client)
		}
	})
}
