package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hexwave/roomplay/internal/types"
	"github.com/hexwave/roomplay/internal/v1/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Client is one authenticated WebSocket connection. Grounded on
// session.Client's readPump/writePump split, with protobuf binary frames
// replaced by JSON Message envelopes — the format the teacher's own
// room.go already falls back to for its JSON broadcast path.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	outbox  chan []byte
	userID  types.UserIdType
	tokenID types.TokenIdType
	connID  types.ConnectionIdType

	mu      sync.RWMutex
	roomID  types.RoomIdType
	hasRoom bool
}

func newClient(h *Hub, conn *websocket.Conn, userID types.UserIdType, tokenID types.TokenIdType, connID types.ConnectionIdType) *Client {
	return &Client{
		hub:     h,
		conn:    conn,
		outbox:  make(chan []byte, sendBuffer),
		userID:  userID,
		tokenID: tokenID,
		connID:  connID,
	}
}

func (c *Client) currentRoom() (types.RoomIdType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID, c.hasRoom
}

func (c *Client) setRoom(roomID types.RoomIdType) {
	c.mu.Lock()
	c.roomID = roomID
	c.hasRoom = true
	c.mu.Unlock()
}

func (c *Client) clearRoom() {
	c.mu.Lock()
	c.hasRoom = false
	c.mu.Unlock()
}

// send frames a pre-encoded payload and queues it for delivery, dropping the
// message rather than blocking the caller if the client is too far behind.
func (c *Client) send(event string, payload json.RawMessage) {
	msg := Message{Event: event, Payload: payload}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outgoing message", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case c.outbox <- data:
	default:
		logging.Warn(context.Background(), "dropping message to slow client", zap.String("user", string(c.userID)), zap.String("event", event))
	}
}

func (c *Client) sendMessage(event string, payload any) {
	c.send(event, encode(payload))
}

func (c *Client) sendError(action string, err error) {
	c.sendMessage(EventError, errorPayload{Action: action, Message: err.Error()})
}

func (c *Client) close() {
	_ = c.conn.Close()
}

// readPump reads client frames and dispatches them into the Room
// Coordinator until the connection errors or closes. Grounded on
// session.Client.readPump.
func (c *Client) readPump() {
	defer func() {
		if err := c.hub.conns.Disconnect(context.Background(), c.userID, c.tokenID); err != nil {
			logging.Warn(context.Background(), "failed to clear connection state on disconnect", zap.String("user", string(c.userID)), zap.Error(err))
		}
		if roomID, ok := c.currentRoom(); ok {
			if err := c.hub.coordinator.LeaveRoom(context.Background(), c.userID); err != nil {
				logging.Warn(context.Background(), "failed to leave room on disconnect", zap.String("user", string(c.userID)), zap.Int64("room", int64(roomID)), zap.Error(err))
			}
		}
		c.hub.removeConnection(c)
		close(c.outbox)
		c.close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(context.Background(), "unexpected websocket close", zap.String("user", string(c.userID)), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("", err)
			continue
		}

		ctx := context.Background()
		if err := c.hub.conns.Verify(ctx, c.userID, c.tokenID, hubKindMultiplayer, c.connID); err != nil {
			c.sendError(msg.Event, err)
			return
		}

		dispatch(ctx, c, msg)
	}
}

// writePump drains the client's send channel onto the socket, sending
// periodic pings to detect dead connections. Grounded on
// session.Client.writePump.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
