package signaling

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Client is a wrapper for a single websocket connection (a participant).
type Client struct {
	// ID is assigned by the Registry on connect.
	ID string

	hub   *Hub
	conn  *websocket.Conn
	codec Codec
	log   *slog.Logger

	// send is a buffered FIFO of outbound messages drained by WritePump.
	send chan *Message

	mu       sync.Mutex
	closed   bool
	identity string
}

// NewClient wraps conn. The codec is chosen from the negotiated subprotocol.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		codec: CodecFor(conn.Subprotocol()),
		log:   hub.log,
		send:  make(chan *Message, hub.opts.SendBuffer),
	}
}

// Identity is the display identity supplied on join.
func (c *Client) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) setIdentity(identity string) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
}

// Send queues msg for delivery without blocking. It returns false when the
// client is gone. A client whose queue is full is too slow to keep up with
// signaling and is closed.
func (c *Client) Send(msg *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Warn("outbound queue full, dropping client", "conn", c.ID)
		c.hub.metrics.SlowConsumer()
		c.closed = true
		close(c.send)
		return false
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. All reads
// happen here, so messages from one client reach the hub in arrival order.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("read failed", "conn", c.ID, "err", err)
			}
			return
		}

		var msg Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			c.Send(ErrorMessage(WrapError("decode", ErrBadMessage, err.Error()), ""))
			continue
		}

		c.hub.Handle(c, &msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. It is the
// only writer on the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := c.codec.Marshal(message)
			if err != nil {
				c.log.Error("encode failed", "conn", c.ID, "type", message.Type, "err", err)
				continue
			}
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.log.Debug("write failed", "conn", c.ID, "err", err)
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
