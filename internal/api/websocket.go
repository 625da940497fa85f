package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-access/internal/wsapi"
)

// WebSocket constants.
const (
	// wsSendBufferSize is the default per-client outbound message buffer size.
	wsSendBufferSize = 256

	// wsSendTimeout bounds how long a response waits for buffer space.
	wsSendTimeout = 5 * time.Second

	// wsCloseGrace bounds the close frame write.
	wsCloseGrace = time.Second
)

// Send errors.
var (
	ErrClientClosed = errors.New("websocket client closed")
	ErrSlowClient   = errors.New("websocket client send buffer full")
)

// Hub tracks live WebSocket connections.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one WebSocket connection. It implements wsapi.Conn.
type WSClient struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	remote string

	// send is never closed; done signals both pumps to stop.
	send     chan []byte
	done     chan struct{}
	doneOnce sync.Once
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Clients authenticate in-band with create_auth_token.
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "conn_id", client.id, "clients", h.ClientCount())
}

// Unregister removes a client from the hub. It reports whether the client
// was still registered, so exactly one caller runs the disconnect path.
func (h *Hub) Unregister(client *WSClient) bool {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		h.logger.Debug("websocket client disconnected", "conn_id", client.id, "clients", h.ClientCount())
	}
	return existed
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll sends a close frame to every registered client. The read pumps
// unregister them as their connections drop.
func (h *Hub) closeAll(reason string) {
	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Close(reason) //nolint:errcheck // Best-effort close during shutdown
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn, remote string) *WSClient {
	return &WSClient{
		hub:    hub,
		conn:   conn,
		id:     uuid.NewString(),
		remote: remote,
		send:   make(chan []byte, hub.cfg.SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the connection's unique identifier.
func (c *WSClient) ID() string { return c.id }

// RemoteAddr returns the peer address seen at upgrade time.
func (c *WSClient) RemoteAddr() string { return c.remote }

// Send queues one text frame for the write pump. It waits up to
// wsSendTimeout for buffer space before giving up on a slow client.
func (c *WSClient) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	timer := time.NewTimer(wsSendTimeout)
	defer timer.Stop()

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClientClosed
	case <-timer.C:
		return ErrSlowClient
	}
}

// Close writes a going-away close frame carrying reason and stops both
// pumps. Closing an already closed client is a no-op.
func (c *WSClient) Close(reason string) error {
	if c.closed() {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseGrace))
	c.finish()
	return err
}

func (c *WSClient) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *WSClient) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// handleWebSocket upgrades the HTTP connection and opens a gateway session
// for it. Authentication happens in-band.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	client := newWSClient(s.hub, conn, r.RemoteAddr)
	s.hub.Register(client)
	s.gateway.OnOpen(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.ctx, s.gateway, s.wsCfg)
}

// readPump reads frames and hands each to the gateway. Requests from one
// connection are therefore handled strictly in arrival order.
func (c *WSClient) readPump(ctx context.Context, gateway *wsapi.Server, cfg config.WebSocketConfig) {
	defer func() {
		c.finish()
		if c.hub.Unregister(c) {
			gateway.OnClose(c)
		}
		c.conn.Close()
	}()

	if cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	extend := func() {
		if pingInterval <= 0 {
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}
	extend()
	c.conn.SetPongHandler(func(string) error {
		extend()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.closed() {
				c.hub.logger.Warn("websocket read error", "conn_id", c.id, "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "conn_id", c.id, "error", err)
			}
			return
		}
		extend()
		gateway.OnMessage(ctx, c, message)
		// A slow request must not count against the keep-alive window.
		extend()
	}
}

// writePump writes queued frames and keep-alive pings.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	var tick <-chan time.Time
	if pingInterval > 0 {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	if writeWait <= 0 {
		writeWait = wsSendTimeout
	}

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.finish()
				return
			}
		case <-tick:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.finish()
				return
			}
		}
	}
}
