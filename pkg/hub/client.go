package hub

import (
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Viewers only send control frames.
	maxMessageSize = 4 * 1024
)

// ErrStopped is returned by Serve when the hub is no longer running.
var ErrStopped = errors.New("hub: stopped")

// Client is a hub subscriber. Websocket viewers are served by Serve;
// in-process subscribers come from Subscribe and have no conn.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message
}

// Serve streams h's broadcasts to conn until the viewer disconnects, the
// viewer falls behind, or the hub stops. Writes happen on the calling
// goroutine. Serve returns only once the reader has finished too, so the
// caller may release conn afterwards.
func Serve(h *Hub, conn *websocket.Conn) error {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, clientBuffer),
	}
	if !h.join(c) {
		conn.Close()
		return ErrStopped
	}

	gone := make(chan struct{})
	go c.read(gone)
	c.write(gone)

	// Unblocks the reader if the write side ended first.
	conn.Close()
	<-gone
	return nil
}

// read consumes pongs and close frames. It closes gone once the client has
// left the hub.
func (c *Client) read(gone chan<- struct{}) {
	defer func() {
		c.hub.leave(c)
		close(gone)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) write(gone <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Dropped by the hub.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			kind := websocket.TextMessage
			if msg.Type == BinaryMessage {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, msg.Data); err != nil {
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
