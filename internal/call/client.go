package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcall/internal/dns"
	"github.com/BioHazard786/Warpcall/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	queueSize      = 64
)

// ErrClientClosed is returned by Send after Close or a lost connection.
var ErrClientClosed = errors.New("signaling client closed")

// Client manages the websocket connection to the signaling server.
type Client struct {
	conn     *websocket.Conn
	codec    signaling.Codec
	log      *slog.Logger
	incoming chan *signaling.Message
	outgoing chan *signaling.Message
	done     chan struct{}
	once     sync.Once
}

// DialOptions tunes Dial.
type DialOptions struct {
	// Msgpack asks the server for the binary codec.
	Msgpack bool

	// Resolver replaces the system resolver when dialing. Nil dials directly.
	Resolver *dns.Resolver

	Logger *slog.Logger
}

// Dial connects to serverURL and starts the read and write pumps.
func Dial(ctx context.Context, serverURL string, opts DialOptions) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.Subprotocols = []string{signaling.SubprotocolJSON}
	if opts.Msgpack {
		dialer.Subprotocols = []string{signaling.SubprotocolMsgpack, signaling.SubprotocolJSON}
	}
	if opts.Resolver != nil {
		dialer.NetDialContext = opts.Resolver.DialContext
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		conn:     conn,
		codec:    signaling.CodecFor(conn.Subprotocol()),
		log:      log.With("component", "signaling-client"),
		incoming: make(chan *signaling.Message, queueSize),
		outgoing: make(chan *signaling.Message, queueSize),
		done:     make(chan struct{}),
	}

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Subprotocol is the codec the server agreed to.
func (c *Client) Subprotocol() string {
	return c.conn.Subprotocol()
}

func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug("read loop ended", "err", err)
			return
		}

		var msg signaling.Message
		if err := c.codec.Unmarshal(data, &msg); err != nil {
			c.log.Warn("dropping undecodable frame", "err", err)
			continue
		}

		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Marshal(message)
			if err != nil {
				c.log.Error("encode failed", "type", message.Type, "err", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.drain()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before Close, so a final hangup still goes out.
func (c *Client) drain() {
	for {
		select {
		case message := <-c.outgoing:
			data, err := c.codec.Marshal(message)
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(c.codec.FrameType(), data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Send queues msg for the server.
func (c *Client) Send(msg *signaling.Message) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClientClosed
	}
}

// Incoming delivers server frames in arrival order. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *signaling.Message {
	return c.incoming
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}
