package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/media"
	"github.com/Revaiowo/streamRTC/internal/peer"
	"github.com/Revaiowo/streamRTC/internal/protocol"
	"github.com/Revaiowo/streamRTC/internal/session"
	"github.com/Revaiowo/streamRTC/internal/signaling"
)

const welcomeTimeout = 10 * time.Second

// ConnectionContext ties one relay connection to the session it feeds.
type ConnectionContext struct {
	Client  *signaling.Client
	Handler *signaling.Handler
	Session *session.Session
	Config  config.Client
	SelfID  string

	mu    sync.Mutex
	conns []*peer.Conn
}

// NewConnectionContext connects to the relay and builds a session wired to
// it. The session is not running yet. progress, if set, hears about each
// connection step.
func NewConnectionContext(ctx context.Context, clientCfg config.Client, logger *slog.Logger, onUpdate func(session.Update), progress func(string)) (*ConnectionContext, error) {
	if progress == nil {
		progress = func(string) {}
	}

	codec, err := protocol.CodecByName(clientCfg.Codec)
	if err != nil {
		return nil, err
	}

	factory, err := peer.Factory(clientCfg, peer.WithLogger(logger))
	if err != nil {
		return nil, session.NewError("create peer factory", err)
	}

	progress("Connecting to " + clientCfg.ServerURL + "...")
	client := signaling.NewClient(clientCfg.ServerURL, codec, logger)
	if err := client.Connect(ctx); err != nil {
		return nil, session.NewError("connect to server", err)
	}

	c := &ConnectionContext{Client: client, Config: clientCfg}
	c.Session = session.New(session.Config{
		Media: &media.FileSource{
			VideoFile:   clientCfg.VideoFile,
			AudioFile:   clientCfg.AudioFile,
			ReceiveOnly: clientCfg.ReceiveOnly,
			Logger:      logger,
		},
		NewPeer: func(m session.LocalMedia) (session.PeerConnection, error) {
			pc, err := factory(m)
			if err != nil {
				return nil, err
			}
			if conn, ok := pc.(*peer.Conn); ok {
				c.mu.Lock()
				c.conns = append(c.conns, conn)
				c.mu.Unlock()
			}
			return pc, nil
		},
		Signaler: client,
		Logger:   logger,
		OnUpdate: onUpdate,
	})

	c.Handler = signaling.NewHandler(client, c.Session)
	go c.Handler.Start()

	progress("Waiting for the server to greet us...")
	select {
	case c.SelfID = <-c.Handler.Welcome():
	case <-time.After(welcomeTimeout):
		client.Close()
		return nil, session.NewError("connect to server", fmt.Errorf("no welcome within %s", welcomeTimeout))
	case <-ctx.Done():
		client.Close()
		return nil, ctx.Err()
	}

	return c, nil
}

// Received sums what every connection of this context received.
func (c *ConnectionContext) Received() peer.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total peer.Stats
	for _, conn := range c.conns {
		s := conn.Stats()
		total.Packets += s.Packets
		total.Bytes += s.Bytes
	}
	return total
}

func (c *ConnectionContext) Close() {
	if c.Client != nil {
		c.Client.Close()
	}
}
