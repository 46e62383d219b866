package streaming

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxStatusConnections caps concurrent admin viewers, same connection-cap
// idea as the teacher's MetricsHub.
const maxStatusConnections = 200

// StatusSource produces the snapshot broadcast to every connected admin
// client on each tick; EvaluationService supplies queue length and worker
// status (§6).
type StatusSource func(ctx context.Context) (any, error)

// StatusHub is the admin-facing live feed of queue/worker status, adapted from the teacher's control_plane/ws_hub.go
// MetricsHub: that hub fans broadcasts out per tenant, keyed by
// TenantID; judgeforge has no tenant concept; an admin connects and sees
// one broadcast group, so the per-tenant map and its tenant-keyed send
// loop collapse to a single client set.
type StatusHub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]struct{}
	register chan *websocket.Conn
	unregis  chan *websocket.Conn

	source   StatusSource
	interval time.Duration
}

// NewStatusHub builds a hub that polls source every interval and fans the
// result out to every registered connection.
func NewStatusHub(source StatusSource, interval time.Duration) *StatusHub {
	return &StatusHub{
		clients:  make(map[*websocket.Conn]struct{}),
		register: make(chan *websocket.Conn),
		unregis:  make(chan *websocket.Conn),
		source:   source,
		interval: interval,
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctx is
// cancelled.
func (h *StatusHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxStatusConnections {
				h.mu.Unlock()
				conn.Close()
				log.Printf("streaming: status hub rejected connection: max connections (%d) reached", maxStatusConnections)
				continue
			}
			h.clients[conn] = struct{}{}
			h.mu.Unlock()

		case conn := <-h.unregis:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.broadcast(ctx)
		}
	}
}

// broadcast fetches one snapshot and writes it to every connected client,
// skipping the round trip to source entirely when nobody is listening.
func (h *StatusHub) broadcast(ctx context.Context) {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	snapshot, err := h.source(ctx)
	if err != nil {
		log.Printf("streaming: status snapshot failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snapshot); err != nil {
			log.Printf("streaming: status hub write error: %v", err)
			go h.Unregister(conn)
		}
	}
}

func (h *StatusHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// Register adds conn to the broadcast set.
func (h *StatusHub) Register(conn *websocket.Conn) {
	h.register <- conn
}

// Unregister removes conn from the broadcast set and closes it.
func (h *StatusHub) Unregister(conn *websocket.Conn) {
	h.unregis <- conn
}

// ClientCount reports how many admin clients are currently connected.
func (h *StatusHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
