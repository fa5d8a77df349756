package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one WebSocket connection subscribed to a single room.
type Client struct {
	ID       string
	Username string
	Conn     *websocket.Conn
	Room     string
	Send     chan *Message
	Hub      *Hub
}

// ReadPump drains inbound frames to keep pong handling alive and detect
// disconnects. Room content flows one way; the only inbound traffic the
// rooms carry is control frames, so payloads are logged and dropped.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Hub] Read error on client %s: %v", c.ID, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Printf("[Hub] Client %s sent unparseable frame: %v", c.ID, err)
			continue
		}
		log.Printf("[Hub] Ignoring inbound %s frame from client %s", msg.Type, c.ID)
	}
}

// WritePump serializes queued messages onto the connection and keeps the
// peer alive with periodic pings. Returns when the Send channel closes
// or a write fails.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeBatch(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeBatch writes msg plus anything already queued behind it as one
// newline-separated text frame, cutting frame overhead during console
// output bursts.
func (c *Client) writeBatch(msg *Message) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if data, err := json.Marshal(msg); err == nil {
		w.Write(data)
	} else {
		log.Printf("[Hub] Dropping unmarshalable %s message: %v", msg.Type, err)
	}

	queued := len(c.Send)
	for i := 0; i < queued; i++ {
		next := <-c.Send
		data, err := json.Marshal(next)
		if err != nil {
			continue
		}
		w.Write([]byte("\n"))
		w.Write(data)
	}

	return w.Close()
}

// SendMessage queues a message for this client only, bypassing room
// broadcast. Used for per-connection replay on join.
func (c *Client) SendMessage(msgType string, payload interface{}) (err error) {
	defer func() {
		if recover() != nil {
			err = errors.New("client connection is closed")
		}
	}()

	msg := &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	select {
	case c.Send <- msg:
		return nil
	default:
		return errors.New("client send buffer is full")
	}
}
