package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/protocol"
	"github.com/Revaiowo/streamRTC/internal/relay"
)

func testConfig() config.Relay {
	return config.Relay{
		Listen:         "127.0.0.1:0",
		AllowedOrigins: []string{"http://localhost:3000"},
		MaxMessageSize: 64 * 1024,
		SendBuffer:     16,
		PongWait:       5 * time.Second,
		WriteWait:      time.Second,
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *relay.Hub, *prometheus.Registry) {
	t.Helper()
	return newTestServerWithConfig(t, testConfig())
}

func newTestServerWithConfig(t *testing.T, cfg config.Relay) (*httptest.Server, *relay.Hub, *prometheus.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	hub := relay.NewHub(relay.WithLogger(logger), relay.WithMetrics(relay.NewMetrics(reg)))

	srv := httptest.NewServer(Routes(hub, cfg, reg, logger))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub, reg
}

type wsClient struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
	id    string
}

func dial(t *testing.T, srv *httptest.Server, codec protocol.Codec) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=" + codec.Name()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &wsClient{t: t, conn: conn, codec: codec}
	welcome := c.read()
	require.Equal(t, protocol.MessageTypeWelcome, welcome.Type)
	require.NotEmpty(t, welcome.Peer)
	c.id = welcome.Peer
	return c
}

func (c *wsClient) send(msg *protocol.Message) {
	c.t.Helper()
	require.NoError(c.t, protocol.WriteMessage(c.conn, c.codec, msg))
}

func (c *wsClient) read() *protocol.Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msg, err := protocol.ReadMessage(c.conn, c.codec)
	require.NoError(c.t, err)
	return msg
}

func TestSignalingOverWebsocket(t *testing.T) {
	srv, _, _ := newTestServer(t)

	x := dial(t, srv, protocol.JSON)
	y := dial(t, srv, protocol.Msgpack)

	x.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: "abc123"})
	reply := x.read()
	require.Equal(t, protocol.MessageTypeUsersInRoom, reply.Type)
	assert.Empty(t, reply.Users)

	y.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: "ABC123"})
	reply = y.read()
	require.Equal(t, protocol.MessageTypeUsersInRoom, reply.Type)
	assert.Equal(t, []string{x.id}, reply.Users)

	joined := x.read()
	require.Equal(t, protocol.MessageTypePeerJoined, joined.Type)
	assert.Equal(t, y.id, joined.Peer)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	x.send(&protocol.Message{Type: protocol.MessageTypeOffer, To: y.id, Payload: offer})
	got := y.read()
	require.Equal(t, protocol.MessageTypeOffer, got.Type)
	assert.Equal(t, x.id, got.From)
	assert.JSONEq(t, string(offer), string(got.Payload))

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	y.send(&protocol.Message{Type: protocol.MessageTypeAnswer, To: x.id, Payload: answer})
	got = x.read()
	require.Equal(t, protocol.MessageTypeAnswer, got.Type)
	assert.Equal(t, y.id, got.From)
	assert.JSONEq(t, string(answer), string(got.Payload))

	x.conn.Close()
	left := y.read()
	require.Equal(t, protocol.MessageTypePeerLeft, left.Type)
	assert.Equal(t, x.id, left.Peer)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	srv, _, _ := newTestServer(t)
	x := dial(t, srv, protocol.JSON)

	require.NoError(t, x.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	x.send(&protocol.Message{Type: "bogus"})
	x.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: "R"})

	reply := x.read()
	assert.Equal(t, protocol.MessageTypeUsersInRoom, reply.Type)
}

func TestOriginCheck(t *testing.T) {
	srv, _, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestUnknownCodecRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=xml"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHTTPEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	x := dial(t, srv, protocol.JSON)
	x.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: "R"})
	x.read()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "healthy")

	resp, err = http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	var rooms []relay.RoomInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	resp.Body.Close()
	assert.Equal(t, []relay.RoomInfo{{ID: "R", Members: []string{x.id}}}, rooms)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "streamrtc_relay_connections 1")
	assert.Contains(t, string(body), `streamrtc_relay_messages_total{type="join"} 1`)
}

func TestHubCloseEndsConnections(t *testing.T) {
	srv, hub, _ := newTestServer(t)
	x := dial(t, srv, protocol.JSON)

	hub.Close()

	x.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := x.conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func metricsBody(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRateLimitDropsBurstOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	srv, _, _ := newTestServerWithConfig(t, cfg)

	x := dial(t, srv, protocol.JSON)
	x.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: "R"})
	require.Equal(t, protocol.MessageTypeUsersInRoom, x.read().Type)
	x.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: "R"})
	require.Equal(t, protocol.MessageTypeUsersInRoom, x.read().Type)

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host"}`)
	for i := 0; i < 3; i++ {
		x.send(&protocol.Message{Type: protocol.MessageTypeICECandidate, Payload: candidate})
	}

	require.Eventually(t, func() bool {
		return strings.Contains(metricsBody(t, srv), `streamrtc_relay_dropped_messages_total{reason="rate-limited"} 3`)
	}, 5*time.Second, 20*time.Millisecond)

	// Over the limit the connection stays open but nothing is routed.
	x.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: "S"})
	x.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := x.conn.ReadMessage()
	var netErr interface{ Timeout() bool }
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
}
