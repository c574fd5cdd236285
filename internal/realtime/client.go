package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second
	// pongWait is how long the peer may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultSendBuffer is the number of frames queued per client before it
	// counts as slow and is dropped.
	DefaultSendBuffer = 256
)

// EventMessage is the only event the relay forwards.
const EventMessage = "message"

// Frame is the wire envelope exchanged with browsers.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client is one websocket connection subscribed to the Hub.
type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	addr   string
	logger *slog.Logger
}

func newClient(conn *websocket.Conn, hub *Hub, addr string, buffer int, logger *slog.Logger) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		conn:   conn,
		send:   make(chan []byte, buffer),
		hub:    hub,
		addr:   addr,
		logger: logger.With(slog.String("addr", addr)),
	}
}

// messageFrame builds the outgoing frame for a relayed payload. data is
// copied verbatim so every subscriber sees exactly what the sender sent.
func messageFrame(data json.RawMessage) []byte {
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	out := make([]byte, 0, len(data)+32)
	out = append(out, `{"event":"message","data":`...)
	out = append(out, data...)
	out = append(out, '}')
	return out
}

// readPump reads frames from the peer and publishes message events. It owns
// the read side of the connection and unsubscribes the client on exit.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Debug("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}
		if f.Event != EventMessage {
			c.logger.Debug("dropping frame with unknown event", slog.String("event", f.Event))
			continue
		}

		c.hub.Publish(messageFrame(f.Data))
	}
}

func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeded read limit")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Debug("client disconnected")
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.logger.Debug("connection closed")
	default:
		c.logger.Info("websocket read error", slog.String("error", err.Error()))
	}
}

// writePump drains the send channel to the peer and keeps the connection
// alive with pings. A closed send channel means the hub dropped the client.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
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
