package streaming

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kestrelsupply/replenisher-agent/core"
	"github.com/stretchr/testify/require"
)

func TestDashboard_BroadcastWithNoClientsDoesNotPanic(t *testing.T) {
	d := NewDashboard(nil)
	require.NotPanics(t, func() {
		d.Broadcast("cycle-1", core.Event{Message: "nobody listening"})
	})
}

func TestDashboard_BroadcastReachesConnectedWebSocketClient(t *testing.T) {
	d := NewDashboard(nil)
	server := httptest.NewServer(d)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give ServeHTTP's registration goroutine a moment to add the client.
	time.Sleep(20 * time.Millisecond)
	d.Broadcast("cycle-9", core.Event{Type: core.EventStatus, Message: "progress"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(payload), "cycle-9")
	require.Contains(t, string(payload), "progress")
}

func TestFanout_ForwardsToEveryNonNilEmitter(t *testing.T) {
	var gotA, gotB []string
	a := EmitterFunc(func(cycleID string, ev core.Event) { gotA = append(gotA, ev.Message) })
	b := EmitterFunc(func(cycleID string, ev core.Event) { gotB = append(gotB, ev.Message) })

	fan := Fanout(a, nil, b)
	fan.Emit("cycle-1", core.Event{Message: "hi"})

	require.Equal(t, []string{"hi"}, gotA)
	require.Equal(t, []string{"hi"}, gotB)
}
