// Package ws streams recorded audit events to websocket clients.
package ws

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// Subscriber is the pub/sub side the hub reads from.
// *redis.PubSub satisfies this interface.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	pubsub  Subscriber
	channel string
	origins []string
}

// NewHub creates a hub relaying one channel. origins are extra host patterns
// allowed to connect cross-origin.
func NewHub(pubsub Subscriber, channel string, origins []string) *Hub {
	return &Hub{pubsub: pubsub, channel: channel, origins: origins}
}

// ServeEvents relays every message on the hub channel to the client as a text
// frame. The subscription is made before the handshake completes, so a client
// sees every event recorded after its dial returns.
func (h *Hub) ServeEvents(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	messages, cleanup, err := h.pubsub.Subscribe(ctx, h.channel)
	if err != nil {
		log.Error().Err(err).Str("channel", h.channel).Msg("websocket subscribe")
		http.Error(w, "live feed unavailable", http.StatusServiceUnavailable)
		return
	}
	defer cleanup()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	// The client never sends; CloseRead cancels ctx once it disconnects.
	ctx = conn.CloseRead(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}
