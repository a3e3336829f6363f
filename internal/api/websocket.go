package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/meterthing/internal/infrastructure/config"
	"github.com/nerrad567/meterthing/internal/infrastructure/logging"
	"github.com/nerrad567/meterthing/internal/obis"
	"github.com/nerrad567/meterthing/internal/thing"
)

// Web Thing WebSocket message types.
const (
	WSTypePropertyStatus       = "propertyStatus"
	WSTypeSetProperty          = "setProperty"
	WSTypeRequestAction        = "requestAction"
	WSTypeAddEventSubscription = "addEventSubscription"
	WSTypeError                = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// WSMessage is a message sent to or from a WebSocket client.
type WSMessage struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// wsError is the data of an error message.
type wsError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Hub fans property changes out to WebSocket clients.
//
// A client that cannot keep up has messages dropped rather than slowing the
// sync loop, which calls the hub's observer synchronously.
type Hub struct {
	cfg     config.WebSocketConfig
	thing   *thing.Thing
	logger  *logging.Logger
	clients map[*WSClient]struct{}

	// mu is held for writing while a client is registered with its initial
	// snapshot and for reading while a change is queued, so a new client
	// never sees a change older than its snapshot after it.
	mu sync.RWMutex
}

// WSClient represents a connected WebSocket client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a hub for th.
func NewHub(cfg config.WebSocketConfig, th *thing.Thing, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		thing:   th,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Observer returns the thing.Observer that broadcasts each change as a
// propertyStatus message.
func (h *Hub) Observer() thing.Observer {
	return func(name string, value obis.Value) {
		data, err := encodeMessage(WSTypePropertyStatus, map[string]any{name: value.Interface()})
		if err != nil {
			h.logger.Error("failed to marshal property status", "property", name, "error", err)
			return
		}
		h.Broadcast(data)
	}
}

// Broadcast queues data for every client without blocking.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		client.trySend(data)
	}
}

// Register adds a client and queues a propertyStatus snapshot of every
// property as its first message.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	snapshot, err := encodeMessage(WSTypePropertyStatus, h.thing.Values())
	if err == nil {
		client.trySend(snapshot)
	}
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	if err != nil {
		h.logger.Error("failed to marshal property snapshot", "error", err)
	}
	h.logger.Debug("websocket client connected", "clients", count)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	if existed {
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client disconnected", "clients", count)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close() //nolint:errcheck // shutting down
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "request_id", requestID(r))
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// timings returns the configured limits with defaults for unset values.
func (h *Hub) timings() (maxSize int64, pingInterval, pongWait time.Duration) {
	maxSize, pingInterval, pongWait = defaultMaxMessageSize, defaultPingInterval, defaultPongTimeout
	if h.cfg.MaxMessageSize > 0 {
		maxSize = int64(h.cfg.MaxMessageSize)
	}
	if h.cfg.PingInterval > 0 {
		pingInterval = time.Duration(h.cfg.PingInterval) * time.Second
	}
	if h.cfg.PongTimeout > 0 {
		pongWait = time.Duration(h.cfg.PongTimeout) * time.Second
	}
	return maxSize, pingInterval, pongWait
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close() //nolint:errcheck // already unregistered
	}()

	maxSize, pingInterval, pongWait := c.hub.timings()
	c.conn.SetReadLimit(maxSize)
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump() {
	_, pingInterval, pongWait := c.hub.timings()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // pump exiting
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage answers a client message. The Thing has no writable
// properties, no actions and no events, so only event subscriptions succeed.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("400 Bad Request", "Parsing request failed")
		return
	}

	switch msg.MessageType {
	case WSTypeSetProperty:
		var values map[string]json.RawMessage
		if err := json.Unmarshal(msg.Data, &values); err != nil || len(values) == 0 {
			c.sendError("400 Bad Request", "Invalid property request")
			return
		}
		for name := range values {
			if err := checkWritable(c.hub.thing, name); err != nil {
				if errors.Is(err, thing.ErrPropertyNotFound) {
					c.sendError("404 Not Found", "Property not found: "+name)
				} else {
					c.sendError("400 Bad Request", "Read-only property")
				}
				return
			}
		}
	case WSTypeRequestAction:
		c.sendError("400 Bad Request", "Invalid action request")
	case WSTypeAddEventSubscription:
		// Accepted; the Thing declares no events.
	default:
		c.sendError("400 Bad Request", "Unknown messageType: "+msg.MessageType)
	}
}

// trySend queues data without blocking. A full buffer drops the message;
// a channel closed by a concurrent shutdown is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
	}
}

// sendError sends a Web Thing error message to the client.
func (c *WSClient) sendError(status, message string) {
	data, err := encodeMessage(WSTypeError, wsError{Status: status, Message: message})
	if err != nil {
		return
	}
	c.trySend(data)
}

// encodeMessage marshals a {"messageType", "data"} envelope.
func encodeMessage(messageType string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WSMessage{MessageType: messageType, Data: raw})
}
