package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/orvi2014/classcatch/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Page contexts connect from arbitrary origins; the channel only
		// carries quota traffic, so origin checks stay permissive.
		return true
	},
}

// Client represents one connected page context.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	id     string
}

// Hub accepts page-context connections and routes their request
// envelopes through the dispatcher. Each client gets its own send queue
// so one slow page cannot stall the others.
type Hub struct {
	dispatcher *Dispatcher
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub over the given dispatcher.
func NewHub(dispatcher *Dispatcher) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns client registration until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debug().Str("client", client.id).Msg("Page context connected")

		case client := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, client)
			h.mu.Unlock()
			log.Debug().Str("client", client.id).Msg("Page context disconnected")

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				_ = client.conn.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// ClientCount returns the number of connected page contexts.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades an HTTP request into a channel connection.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade channel connection")
		return
	}

	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 64),
		closed: make(chan struct{}),
		id:     uuid.NewString(),
	}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump decodes request envelopes and dispatches them. Responses are
// queued on the client's send channel, so several requests may be in
// flight at once without blocking the read loop.
func (c *Client) readPump() {
	defer func() {
		close(c.closed)
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("Channel read error")
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Str("client", c.id).Msg("Malformed envelope on channel")
			continue
		}

		go func(env protocol.Envelope) {
			resp := c.hub.dispatcher.Dispatch(context.Background(), env)
			data, err := json.Marshal(resp)
			if err != nil {
				log.Error().Err(err).Str("type", string(resp.Type)).Msg("Failed to marshal response envelope")
				return
			}
			select {
			case c.send <- data:
			case <-c.closed:
			}
		}(env)
	}
}

// writePump drains the send queue and keeps the connection alive with
// pings. It exits when the read side tears the client down.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
