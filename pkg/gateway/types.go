package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is a server-initiated message mirroring one stream fragment to
// observing clients. Seq is monotonically increasing per broadcaster so
// clients can detect gaps.
type Event struct {
	Event     string `json:"event"`
	Session   string `json:"session_key,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Text      string `json:"text,omitempty"`
	Seq       int64  `json:"seq"`
	Timestamp int64  `json:"timestamp"`
}

// Client is one connected observer.
type Client struct {
	ID          string
	RemoteAddr  string
	ConnectedAt time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// write serializes frame writes; gorilla connections allow one concurrent
// writer only.
func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ClientInfo is a read-only snapshot of a connected client.
type ClientInfo struct {
	ID          string    `json:"id"`
	RemoteAddr  string    `json:"remote_addr"`
	ConnectedAt time.Time `json:"connected_at"`
}
