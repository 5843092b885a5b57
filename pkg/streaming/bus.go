// Package streaming delivers cycle events to HTTP clients: a per-cycle
// Server-Sent-Events stream for the primary agent/stream/{id} endpoint
// (spec §4.9, §6), and a secondary all-cycles WebSocket broadcast for the
// admin dashboard (dashboard.go).
package streaming

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/kestrelsupply/replenisher-agent/core"
)

// maxBufferedEvents is the per-cycle FIFO capacity (spec §4.9 recommends
// 1,000; oldest events are dropped on overflow rather than blocking the
// pipeline).
const maxBufferedEvents = 1000

type subscriber chan core.Event

type cycleStream struct {
	mu     sync.Mutex
	buf    []core.Event
	subs   map[subscriber]struct{}
	closed bool
}

// Bus is the process-wide registry of cycle_id -> bounded event buffer. It
// implements core.EventEmitter so cycle stages can publish without knowing
// about HTTP or SSE.
type Bus struct {
	mu      sync.Mutex
	streams map[string]*cycleStream
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{streams: make(map[string]*cycleStream)}
}

func (b *Bus) stream(cycleID string) *cycleStream {
	b.mu.Lock()
	defer b.mu.Unlock()
	cs, ok := b.streams[cycleID]
	if !ok {
		cs = &cycleStream{subs: make(map[subscriber]struct{})}
		b.streams[cycleID] = cs
	}
	return cs
}

// Emit appends an event to cycleID's buffer (dropping the oldest on
// overflow) and fans it out to every live subscriber, non-blockingly.
func (b *Bus) Emit(cycleID string, ev core.Event) {
	cs := b.stream(cycleID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.closed {
		return
	}
	cs.buf = append(cs.buf, ev)
	if len(cs.buf) > maxBufferedEvents {
		cs.buf = cs.buf[len(cs.buf)-maxBufferedEvents:]
	}
	for sub := range cs.subs {
		select {
		case sub <- ev:
		default:
			// Slow subscriber: drop rather than block the cycle.
		}
	}
}

// Close marks cycleID's stream as finished; subscribers' channels are
// closed so their SSE handlers can end the response.
func (b *Bus) Close(cycleID string) {
	cs := b.stream(cycleID)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.closed = true
	for sub := range cs.subs {
		close(sub)
		delete(cs.subs, sub)
	}
}

func (cs *cycleStream) subscribe() (subscriber, []core.Event) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	sub := make(subscriber, 64)
	backlog := make([]core.Event, len(cs.buf))
	copy(backlog, cs.buf)
	if !cs.closed {
		cs.subs[sub] = struct{}{}
	} else {
		close(sub)
	}
	return sub, backlog
}

func (cs *cycleStream) unsubscribe(sub subscriber) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.subs[sub]; ok {
		delete(cs.subs, sub)
	}
}

// ServeHTTP implements the /agent/stream/{id} SSE endpoint (spec §6). It
// first replays the cycle's buffered backlog, then streams new events as
// they arrive, until the client disconnects or the cycle closes its
// stream.
func (b *Bus) ServeHTTP(w http.ResponseWriter, r *http.Request, cycleID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	cs := b.stream(cycleID)
	sub, backlog := cs.subscribe()
	defer cs.unsubscribe(sub)

	for _, ev := range backlog {
		if !writeFrame(w, ev) {
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub:
			if !open {
				return
			}
			if !writeFrame(w, ev) {
				return
			}
			flusher.Flush()
		}
	}
}

func writeFrame(w http.ResponseWriter, ev core.Event) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		return true
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err == nil
}
