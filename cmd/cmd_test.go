package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/relay"
	"github.com/Revaiowo/streamRTC/internal/server"
	"github.com/Revaiowo/streamRTC/internal/session"
)

func TestRoomsURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ws://localhost:8000/ws", "http://localhost:8000/rooms"},
		{"wss://relay.example.com/ws?codec=msgpack", "https://relay.example.com/rooms"},
		{"https://relay.example.com/", "https://relay.example.com/rooms"},
		{"ws://relay.example.com/signal/ws", "http://relay.example.com/signal/rooms"},
	}
	for _, tt := range tests {
		got, err := roomsURL(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := roomsURL("ftp://example.com")
	assert.Error(t, err)
}

func TestFetchRooms(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := relay.NewHub(relay.WithLogger(logger))
	srv := httptest.NewServer(server.Routes(hub, config.Relay{}, prometheus.NewRegistry(), logger))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	rooms, err := fetchRooms(context.Background(), srv.Client(), "ws"+srv.URL[len("http"):]+"/ws")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	_, err = fetchRooms(context.Background(), srv.Client(), srv.URL+"/nothing/ws")
	assert.Error(t, err)
}

func TestCallError(t *testing.T) {
	assert.NoError(t, callError(session.Update{State: session.Closed}))
	assert.NoError(t, callError(session.Update{State: session.Failed, Err: session.ErrPeerLeft}))

	err := callError(session.Update{State: session.Failed, Err: session.ErrRoomFull})
	require.Error(t, err)
	assert.Equal(t, "Room is full. Try a different room code", err.Error())

	assert.EqualError(t, callError(session.Update{State: session.Failed, Err: errors.New("boom")}), "boom")
}

func TestLoadConfig(t *testing.T) {
	vp := config.New()
	vp.Set(config.KeyCodec, "msgpack")
	vp.Set(config.KeyLogLevel, "debug")
	require.NoError(t, loadConfig(vp, ""))
	assert.Equal(t, "msgpack", cfg.Client.Codec)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))

	vp = config.New()
	vp.Set(config.KeyLogFormat, "yaml")
	assert.Error(t, loadConfig(vp, ""))

	assert.Error(t, loadConfig(config.New(), "does-not-exist.yaml"))
}

func TestNewConnectionContextReportsProgress(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := relay.NewHub(relay.WithLogger(logger))
	srv := httptest.NewServer(server.Routes(hub, config.Relay{AllowedOrigins: []string{"*"}}, prometheus.NewRegistry(), logger))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})

	var steps []string
	clientCfg := config.Client{ServerURL: "ws" + srv.URL[len("http"):] + "/ws", ReceiveOnly: true}
	conn, err := NewConnectionContext(context.Background(), clientCfg, logger, nil, func(step string) {
		steps = append(steps, step)
	})
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	assert.NotEmpty(t, conn.SelfID)
	require.Len(t, steps, 2)
	assert.Contains(t, steps[0], clientCfg.ServerURL)
	assert.Zero(t, conn.Received().Packets)
}
