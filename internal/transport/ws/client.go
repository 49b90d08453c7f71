package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID uuid.UUID
	logger *zap.Logger

	send chan []byte
	done chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		logger: hub.logger,
		send:   make(chan []byte, sendBufSize),
		done:   make(chan struct{}),
	}
}

// ReadPump reads messages from the WebSocket. The protocol is almost
// one-directional; clients only send keepalive pings, all mutations go over
// HTTP.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		var frame clientFrame
		err := wsjson.Read(context.Background(), c.conn, &frame)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.logger.Debug("client closed", zap.Stringer("user_id", c.userID))
			} else {
				c.logger.Warn("read error", zap.Stringer("user_id", c.userID), zap.Error(err))
			}
			return
		}

		switch frame.Type {
		case frameTypePing:
			c.sendPong()
		default:
			c.sendError("UNKNOWN_FRAME", "unknown frame type: "+frame.Type)
		}
	}
}

// WritePump writes messages from the send channel to the WebSocket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.logger.Warn("write error", zap.Stringer("user_id", c.userID), zap.Error(err))
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.logger.Warn("ping error", zap.Stringer("user_id", c.userID), zap.Error(err))
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(clientFrame{Type: frameTypePong})
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	data, err := json.Marshal(errorFrame{
		Type: frameTypeError,
		Code: code, Message: message,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
