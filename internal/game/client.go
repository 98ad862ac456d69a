package game

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one websocket connection. It starts unbound; the first
// create_room / join_room / reconnect message attaches it to a room and a
// player slot. Socket identity and player identity stay separate so a
// reconnect can take over an existing slot.
type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string

	room      *Room
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan any, 16),
	}
}

// newTestClient builds a connectionless client for in-package tests.
func newTestClient() *Client {
	return &Client{send: make(chan any, 4096)}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// ReadPump consumes inbound messages until the connection drops. Must run on
// the connection's goroutine; serveWS in web.go starts the write pump.
func (c *Client) ReadPump(m *Manager, log *zap.Logger) {
	defer func() {
		if c.room != nil {
			c.room.disconnect(c)
		} else {
			c.closeSend()
		}
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		if c.room == nil {
			c.handleUnbound(m, log, msg)
			continue
		}
		c.room.Dispatch(c, msg)
	}
}

// handleUnbound processes the pre-room handshake messages.
func (c *Client) handleUnbound(m *Manager, log *zap.Logger, msg ClientMessage) {
	switch msg.Type {
	case EventTypeCreateRoom:
		if !validName(msg.Name) {
			c.trySend(ErrorMessage{Type: EventTypeError, Code: ErrCodeInvalidName})
			return
		}
		settings := DefaultSettings()
		if msg.Settings != nil {
			if err := msg.Settings.Validate(); err != nil {
				c.trySend(ErrorMessage{Type: EventTypeError, Code: "INVALID_SETTINGS", Message: err.Error()})
				return
			}
			settings = *msg.Settings
		}
		room := m.CreateRoom(settings)
		room.join(c, msg.Name, false)
		if c.playerID == "" {
			return
		}
		c.room = room
		c.trySend(RoomCreatedMessage{Type: EventTypeRoomCreated, Code: room.Code(), PlayerID: c.playerID})

	case EventTypeJoinRoom:
		room := m.Get(msg.Code)
		if room == nil {
			c.trySend(ErrorMessage{Type: EventTypeError, Code: ErrCodeRoomNotFound})
			return
		}
		room.join(c, msg.Name, false)
		if c.playerID != "" {
			c.room = room
		}

	case EventTypeReconnect:
		room := m.Get(msg.Code)
		if room == nil {
			c.trySend(ErrorMessage{Type: EventTypeError, Code: ErrCodeRoomNotFound})
			return
		}
		room.reconnect(c, msg.PlayerID)
		if c.playerID != "" {
			c.room = room
		}

	default:
		log.Debug("message before join dropped", zap.String("type", msg.Type))
	}
}

func (c *Client) trySend(msg any) {
	select {
	case c.send <- msg:
	default:
	}
}

// WritePump drains the send channel onto the wire.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}
