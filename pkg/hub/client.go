package hub

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBuffer     = 256
)

// Client is one websocket connection. Its name and color are owned by the
// document loop.
type Client struct {
	conn  *websocket.Conn
	doc   *Document
	id    string
	name  string
	color string
	send  chan []byte
}

func newClient(conn *websocket.Conn, doc *Document, name string) *Client {
	return &Client{
		conn: conn,
		doc:  doc,
		id:   uuid.NewString(),
		name: name,
		send: make(chan []byte, sendBuffer),
	}
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.doc.unregister <- c:
		case <-c.doc.done:
		}
		c.conn.Close()
		c.doc.log.Info("Client disconnected", "client", c.id)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.doc.log.Warn("WebSocket read error", "client", c.id, "error", err)
			}
			return
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.doc.log.Warn("Error parsing message as JSON", "client", c.id, "error", err)
			continue
		}
		select {
		case c.doc.inbound <- clientMessage{client: c, msg: msg}:
		case <-c.doc.done:
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() {
		c.conn.Close()
	}()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		w, err := c.conn.NextWriter(websocket.TextMessage)
		if err != nil {
			c.doc.log.Warn("WebSocket write error", "client", c.id, "error", err)
			return
		}
		if _, err := w.Write(message); err != nil {
			c.doc.log.Warn("WebSocket write error", "client", c.id, "error", err)
			return
		}
		if err := w.Close(); err != nil {
			c.doc.log.Warn("WebSocket write error", "client", c.id, "error", err)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}
