package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Hub tracks websocket connections per room and fans change signals out to them.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[uuid.UUID]*Connection // room_code -> conn_id -> connection
	logger zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[uuid.UUID]*Connection),
		logger: logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a connection to a room.
func (h *Hub) Register(roomCode string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[roomCode]
	if !ok {
		conns = make(map[uuid.UUID]*Connection)
		h.rooms[roomCode] = conns
	}
	conns[conn.ID()] = conn
	h.logger.Debug().Str("room_code", roomCode).Str("conn_id", conn.ID().String()).Msg("connection registered")
}

// Unregister closes and removes a connection. Empty rooms are dropped.
func (h *Hub) Unregister(roomCode string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.rooms[roomCode]
	if !ok {
		return
	}
	if _, exists := conns[conn.ID()]; !exists {
		return
	}
	conn.Close()
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(h.rooms, roomCode)
	}
	h.logger.Debug().Str("room_code", roomCode).Str("conn_id", conn.ID().String()).Msg("connection unregistered")
}

// BroadcastToRoom queues msg on every connection of the room and returns how many accepted it.
func (h *Hub) BroadcastToRoom(roomCode string, msg Message) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.rooms[roomCode]))
	for _, conn := range h.rooms[roomCode] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(msg); err != nil {
			h.logger.Warn().Err(err).Str("room_code", roomCode).Str("conn_id", conn.ID().String()).Msg("broadcast send failed")
			continue
		}
		delivered++
	}
	return delivered
}

// ConnectionCount reports the live connections of a room.
func (h *Hub) ConnectionCount(roomCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomCode])
}

// Connection represents a WebSocket connection with send queue.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	id := uuid.New()
	return &Connection{
		id:     id,
		conn:   conn,
		sendCh: make(chan Message, sendBuffer),
		logger: logger.With().Str("conn_id", id.String()).Logger(),
	}
}

func (c *Connection) ID() uuid.UUID { return c.id }

// Send queues a message for delivery.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.sendCh)
	_ = c.conn.Close()
}

// WritePump sends queued messages and keeps the peer alive with pings.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Warn().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump receives messages and calls the handler until the peer goes away.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer func() { _ = c.conn.Close() }()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			return
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionClosed = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull    = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
