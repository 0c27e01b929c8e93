package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	DefaultWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	DefaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	DefaultMaxMessageSize = 64 * 1024 // 64 KB - enough for WebRTC SDP messages

	DefaultSendBuffer = 256
)

// ConnConfig tunes a websocket connection. Zero fields take the defaults.
type ConnConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int

	// RateLimit caps inbound messages per second; zero disables it.
	RateLimit float64
	RateBurst int
}

func (c ConnConfig) withDefaults() ConnConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = DefaultPongWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}

// Conn is a wrapper for a single websocket connection (a peer). It is the
// Endpoint the hub delivers to.
type Conn struct {
	hub    *Hub
	ws     *websocket.Conn
	codec  protocol.Codec
	cfg    ConnConfig
	logger *slog.Logger

	// id is assigned by the hub on registration.
	id string

	// send is a buffered channel for all outbound messages. It is never
	// closed; quit signals shutdown instead.
	send      chan *protocol.Message
	quit      chan struct{}
	closeOnce sync.Once

	limiter *rate.Limiter
}

func NewConn(hub *Hub, ws *websocket.Conn, codec protocol.Codec, cfg ConnConfig, logger *slog.Logger) *Conn {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	c := &Conn{
		hub:    hub,
		ws:     ws,
		codec:  codec,
		cfg:    cfg,
		logger: logger,
		send:   make(chan *protocol.Message, cfg.SendBuffer),
		quit:   make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return c
}

// Deliver queues msg for the write pump. A connection whose queue is full
// is too slow to keep up and gets closed.
func (c *Conn) Deliver(msg *protocol.Message) bool {
	select {
	case <-c.quit:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.Close()
		return false
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// Serve registers the connection with the hub and runs both pumps. It
// returns once the connection is gone.
func (c *Conn) Serve() {
	id, err := c.hub.Connect(c)
	if err != nil {
		c.logger.Warn("connection refused", "remote", c.ws.RemoteAddr(), "error", err)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
			time.Now().Add(c.cfg.WriteWait))
		c.ws.Close()
		return
	}
	c.id = id
	c.logger = c.logger.With("conn", id)

	go c.WritePump()
	c.ReadPump()
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine, so one client's messages are routed in order.
func (c *Conn) ReadPump() {
	// When this function exits (e.g., connection closes), unregister the client
	defer func() {
		c.hub.Disconnect(c.id)
		c.Close()
		c.ws.Close()
	}()

	pongWait := c.cfg.PongWait
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("read failed", "error", err)
			}
			return
		}

		msg, err := c.codec.Decode(data)
		if err != nil {
			c.hub.metrics.drop(dropMalformed)
			c.logger.Warn("message dropped", "reason", dropMalformed, "error", err)
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.metrics.drop(dropRateLimited)
			c.logger.Warn("message dropped", "reason", dropRateLimited, "type", msg.Type)
			continue
		}

		c.hub.Route(c.id, msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Conn) WritePump() {
	pingPeriod := (c.cfg.PongWait * 9) / 10
	ticker := time.NewTicker(pingPeriod)

	// When this function exits, stop the ticker and close the connection;
	// the read pump then fails and unregisters.
	defer func() {
		ticker.Stop()
		c.Close()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := protocol.WriteMessage(c.ws, c.codec, msg); err != nil {
				c.logger.Warn("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
