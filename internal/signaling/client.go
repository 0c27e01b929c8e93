package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrClosed = errors.New("signaling client closed")

// Client manages the WebSocket connection to the signaling server.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	codec     protocol.Codec
	logger    *slog.Logger
	resolver  *resolver

	incoming  chan *protocol.Message
	outgoing  chan *protocol.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new signaling client
func NewClient(serverURL string, codec protocol.Codec, logger *slog.Logger) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		codec:     codec,
		logger:    logger.With("component", "signaling"),
		resolver:  newResolver(),
		incoming:  make(chan *protocol.Message, 32),
		outgoing:  make(chan *protocol.Message, 32),
		done:      make(chan struct{}),
	}
}

// Connect establishes WebSocket connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if c.codec != protocol.JSON {
		q := u.Query()
		q.Set("codec", c.codec.Name())
		u.RawQuery = q.Encode()
	}

	dialer := *websocket.DefaultDialer
	dialer.NetDialContext = c.resolver.DialContext

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		msg, err := protocol.ReadMessage(c.conn, c.codec)
		if err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				select {
				case <-c.done:
				default:
					c.logger.Debug("read failed", "error", err)
				}
			}
			return
		}

		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := protocol.WriteMessage(c.conn, c.codec, message); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Flush whatever is queued, a final leave in particular.
			for {
				select {
				case message := <-c.outgoing:
					c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := protocol.WriteMessage(c.conn, c.codec, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues a message for the server.
func (c *Client) Send(msg *protocol.Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel for receiving messages. It is closed when the
// connection ends.
func (c *Client) Incoming() <-chan *protocol.Message {
	return c.incoming
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
