package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/crash/internal/engine"
)

func TestHub_BroadcastsToClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Close()

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration is asynchronous to the dial; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, 1, hub.ClientCount())

	hub.Publish(engine.Event{Type: "multiplier-update", Data: map[string]interface{}{
		"value": 1.25,
	}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev engine.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	assert.Equal(t, "multiplier-update", ev.Type)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub(nil) // Run never started: the buffer will fill

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(engine.Event{Type: "waiting"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
}
