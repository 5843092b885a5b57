package streaming

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kestrelsupply/replenisher-agent/core"
	"go.uber.org/zap"
)

var dashboardUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type dashboardFrame struct {
	CycleID string     `json:"cycle_id"`
	Event   core.Event `json:"event"`
}

// Dashboard is an admin-only broadcast hub: every event from every cycle,
// regardless of subscription, pushed over a WebSocket connection. It is
// separate from Bus (which is per-cycle SSE) because the operator console
// needs a live view across concurrently running cycles.
type Dashboard struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan dashboardFrame
	log     *zap.SugaredLogger
}

// NewDashboard constructs an empty broadcast hub. A nil logger falls back
// to zap's no-op logger.
func NewDashboard(logger *zap.SugaredLogger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Dashboard{clients: make(map[*websocket.Conn]chan dashboardFrame), log: logger}
}

// Broadcast fans a cycle event out to every connected dashboard client. It
// is meant to be wrapped by a core.EventEmitter so the pipeline driver's
// Emit calls reach the dashboard without any direct dependency.
func (d *Dashboard) Broadcast(cycleID string, ev core.Event) {
	frame := dashboardFrame{CycleID: cycleID, Event: ev}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.clients {
		select {
		case ch <- frame:
		default:
			// Slow dashboard client: drop this frame rather than block.
		}
	}
}

// Emit implements core.EventEmitter by broadcasting to every dashboard
// client, letting a Dashboard be passed directly to Fanout.
func (d *Dashboard) Emit(cycleID string, ev core.Event) { d.Broadcast(cycleID, ev) }

// ServeHTTP upgrades the request to a WebSocket and streams every
// broadcast frame to it until the client disconnects.
func (d *Dashboard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := dashboardUpgrader.Upgrade(w, r, nil)
	if err != nil {
		d.log.Warnw("dashboard upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch := make(chan dashboardFrame, 256)
	d.mu.Lock()
	d.clients[conn] = ch
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.clients, conn)
		d.mu.Unlock()
	}()

	go drainReads(conn)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(frame)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainReads discards client messages but keeps reading so control frames
// (close, pong) are processed and a dead connection is detected promptly.
func drainReads(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// EmitterFunc adapts a plain function to core.EventEmitter, used to fan a
// driver's events out to both the per-cycle Bus and the all-cycles
// Dashboard with a single collaborator.
type EmitterFunc func(cycleID string, ev core.Event)

// Emit implements core.EventEmitter.
func (f EmitterFunc) Emit(cycleID string, ev core.Event) { f(cycleID, ev) }

// Fanout returns an EventEmitter that forwards every event to all of emit.
func Fanout(emit ...core.EventEmitter) core.EventEmitter {
	return EmitterFunc(func(cycleID string, ev core.Event) {
		for _, e := range emit {
			if e != nil {
				e.Emit(cycleID, ev)
			}
		}
	})
}
