package offgate

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Message types exchanged with connected pages.
const (
	// MessageSkipWaiting asks the staged version to activate.
	MessageSkipWaiting = "SKIP_WAITING"
	// MessageNewVersion announces a staged version to connected pages.
	MessageNewVersion = "NEW_VERSION"
	// MessageReplay requests an immediate queue replay pass.
	MessageReplay = "REPLAY"
)

type Message struct {
	Type string `json:"type"`
}

// hub is the foreground/background message channel: pages connect over
// WebSocket, receive broadcasts, and send control messages. Unknown message
// types are ignored.
type hub struct {
	upgrader  websocket.Upgrader
	onMessage func(Message)

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newHub(onMessage func(Message)) *hub {
	return &hub{
		upgrader:  websocket.Upgrader{},
		onMessage: onMessage,
		conns:     map[*websocket.Conn]struct{}{},
	}
}

func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	go h.readLoop(conn)
}

func (h *hub) readLoop(conn *websocket.Conn) {
	defer h.drop(conn)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if h.onMessage != nil {
			h.onMessage(msg)
		}
	}
}

func (h *hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// Broadcast sends a message to every connected page. Writes are serialized
// under the hub lock; a write failure drops the connection.
func (h *hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.conns {
		if err := c.WriteJSON(msg); err != nil {
			log.Printf("messaging: dropping connection: %v", err)
			delete(h.conns, c)
			_ = c.Close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	for c := range h.conns {
		_ = c.Close()
	}
	h.conns = map[*websocket.Conn]struct{}{}
	h.mu.Unlock()
}
