package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/kestrelworks/folio/pkg/models"
	"github.com/kestrelworks/folio/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; restrict in production
	},
}

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// How often subscribed symbols are re-quoted and pushed to clients.
	quoteRefreshInterval = 30 * time.Second
)

// handleWebSocket upgrades HTTP connections to WebSocket and manages
// symbol subscriptions for streaming quote updates.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := &WSClient{
		hub:     s.wsHub,
		send:    make(chan WSMessage, 256),
		symbols: make(map[string]bool),
	}

	s.wsHub.Register(client)

	// Start reader and writer goroutines
	go wsWritePump(conn, client)
	go wsReadPump(conn, client, s)
}

// wsReadPump pumps messages from the WebSocket connection to the hub.
func wsReadPump(conn *websocket.Conn, client *WSClient, s *Server) {
	defer func() {
		client.hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket read error")
			}
			break
		}

		// Parse incoming message
		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "subscribe":
			if symbol := wsSymbol(msg.Data); symbol != "" {
				s.wsHub.Subscribe(client, symbol)
				client.send <- WSMessage{
					Type: "subscribed",
					Data: map[string]string{"symbol": symbol},
				}
			}
		case "unsubscribe":
			if symbol := wsSymbol(msg.Data); symbol != "" {
				s.wsHub.Unsubscribe(client, symbol)
				client.send <- WSMessage{
					Type: "unsubscribed",
					Data: map[string]string{"symbol": symbol},
				}
			}
		case "ping":
			client.send <- WSMessage{Type: "pong"}
		}
	}
}

// wsSymbol extracts the symbol from a subscribe/unsubscribe payload, which
// may be a bare string or an object with a "symbol" field.
func wsSymbol(data interface{}) string {
	switch v := data.(type) {
	case string:
		return utils.NormalizeSymbol(v)
	case map[string]interface{}:
		if s, ok := v["symbol"].(string); ok {
			return utils.NormalizeSymbol(s)
		}
	}
	return ""
}

// wsWritePump pumps messages from the hub to the WebSocket connection.
func wsWritePump(conn *websocket.Conn, client *WSClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Msg("WebSocket marshal error")
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			// Flush queued messages
			n := len(client.send)
			for i := 0; i < n; i++ {
				nextMsg := <-client.send
				nextData, err := json.Marshal(nextMsg)
				if err != nil {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, nextData); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// quoteLoop periodically refreshes snapshots for all subscribed symbols and
// broadcasts them to connected clients. The snapshot cache keeps a refresh
// cheap while its entry is still fresh.
func (s *Server) quoteLoop(ctx context.Context) {
	ticker := time.NewTicker(quoteRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range s.wsHub.Symbols() {
				snap, err := s.market.Snapshot(ctx, models.Request{Symbol: symbol})
				if err != nil {
					log.Debug().Str("symbol", symbol).Err(err).Msg("quote refresh failed")
					continue
				}
				s.wsHub.Broadcast(WSMessage{Type: "quote", Data: snap})
			}
		}
	}
}
