// Package gateway exposes a read-only WebSocket feed of the fragment
// streams produced by agent runs. Observers see the same status, sentinel,
// content and error fragments the requesting client receives over HTTP.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Broadcaster fans fragments out to every connected observer. Slow or dead
// clients are dropped on write failure rather than blocking the stream.
type Broadcaster struct {
	clients  *ClientRegistry
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	seq      uint64
}

// NewBroadcaster creates a broadcaster with an empty client registry.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: NewClientRegistry(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the underlying registry.
func (b *Broadcaster) Clients() *ClientRegistry {
	return b.clients
}

// PublishFragment mirrors one fragment of a session's stream to every
// connected observer.
func (b *Broadcaster) PublishFragment(sessionKey, kind, text string) {
	b.broadcast(Event{
		Event:   "fragment",
		Session: sessionKey,
		Kind:    kind,
		Text:    text,
	})
}

func (b *Broadcaster) broadcast(event Event) {
	event.Seq = int64(atomic.AddUint64(&b.seq, 1))
	event.Timestamp = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event.Event).Msg("Failed to marshal event")
		return
	}

	for _, client := range b.clients.All() {
		if err := client.write(data); err != nil {
			b.logger.Warn().
				Err(err).
				Str("client_id", client.ID).
				Msg("Dropping client after failed write")
			client.conn.Close()
			b.clients.Remove(client.ID)
		}
	}
}

// HandleWS upgrades the request and keeps the connection registered until
// the client disconnects. Inbound frames are read and discarded; the feed
// is one-way.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		RemoteAddr:  r.RemoteAddr,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
	b.clients.Add(client)
	b.logger.Info().
		Str("client_id", client.ID).
		Str("remote_addr", client.RemoteAddr).
		Msg("Observer connected")

	defer func() {
		b.clients.Remove(client.ID)
		conn.Close()
		b.logger.Info().Str("client_id", client.ID).Msg("Observer disconnected")
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
