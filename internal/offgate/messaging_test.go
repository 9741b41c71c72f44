package offgate

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, h *hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.conns) == 1
	}, time.Second, 5*time.Millisecond)
	return conn
}

func TestHubBroadcastsNewVersion(t *testing.T) {
	h := newHub(nil)
	conn := dialHub(t, h)

	h.Broadcast(Message{Type: MessageNewVersion})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageNewVersion, msg.Type)
}

func TestHubDeliversInboundMessages(t *testing.T) {
	got := make(chan Message, 1)
	h := newHub(func(m Message) { got <- m })
	conn := dialHub(t, h)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageSkipWaiting}))

	select {
	case msg := <-got:
		assert.Equal(t, MessageSkipWaiting, msg.Type)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestHubDropsClosedConnections(t *testing.T) {
	h := newHub(nil)
	conn := dialHub(t, h)
	_ = conn.Close()

	// The read loop notices the close and unregisters.
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.conns) == 0
	}, time.Second, 5*time.Millisecond)

	// Broadcasting to nobody is fine.
	h.Broadcast(Message{Type: MessageNewVersion})
}
