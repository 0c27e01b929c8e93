package peer

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Revaiowo/streamRTC/internal/config"
	"github.com/Revaiowo/streamRTC/internal/session"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func never() bool  { return false }
func always() bool { return true }

func TestConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.Client
		detect     func() bool
		wantURLs   [][]string
		wantPolicy pion.ICETransportPolicy
	}{
		{
			name:       "no servers",
			cfg:        config.Client{},
			detect:     never,
			wantPolicy: pion.ICETransportPolicyAll,
		},
		{
			name:       "stun only",
			cfg:        config.Client{STUNServer: "stun:stun.example.com:3478"},
			detect:     always,
			wantURLs:   [][]string{{"stun:stun.example.com:3478"}},
			wantPolicy: pion.ICETransportPolicyAll,
		},
		{
			name: "turn forced by config",
			cfg: config.Client{
				STUNServer: "stun:stun.example.com:3478",
				TURNServer: "turn:turn.example.com:3478",
				ForceRelay: true,
			},
			detect:     never,
			wantURLs:   [][]string{{"stun:stun.example.com:3478"}, nil},
			wantPolicy: pion.ICETransportPolicyRelay,
		},
		{
			name:       "turn forced by detector",
			cfg:        config.Client{TURNServer: "turn:turn.example.com:3478"},
			detect:     always,
			wantURLs:   [][]string{nil},
			wantPolicy: pion.ICETransportPolicyRelay,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := Configuration(tt.cfg, tt.detect)
			assert.Equal(t, tt.wantPolicy, conf.ICETransportPolicy)
			require.Len(t, conf.ICEServers, len(tt.wantURLs))
			for i, want := range tt.wantURLs {
				if want != nil {
					assert.Equal(t, want, conf.ICEServers[i].URLs)
				}
			}
		})
	}
}

func TestConfigurationTURNCredentials(t *testing.T) {
	conf := Configuration(config.Client{
		TURNServer: "turn:turn.example.com:3478",
		TURNUser:   "alice",
		TURNPass:   "secret",
	}, never)

	require.Len(t, conf.ICEServers, 1)
	turn := conf.ICEServers[0]
	assert.Equal(t, "alice", turn.Username)
	assert.Equal(t, "secret", turn.Credential)
	assert.NotEmpty(t, turn.URLs)
}

func TestLooksTunneled(t *testing.T) {
	ipNet := func(s string) net.Addr {
		_, n, err := net.ParseCIDR(s)
		require.NoError(t, err)
		return n
	}

	assert.True(t, looksTunneled("wg0", nil))
	assert.True(t, looksTunneled("utun3", nil))
	assert.True(t, looksTunneled("CloudflareWARP", nil))
	assert.True(t, looksTunneled("eth0", []net.Addr{ipNet("100.100.1.2/32")}))
	assert.True(t, looksTunneled("en0", []net.Addr{&net.IPAddr{IP: net.ParseIP("100.64.0.1")}}))
	assert.False(t, looksTunneled("eth0", []net.Addr{ipNet("192.168.1.10/24")}))
	assert.False(t, looksTunneled("en0", nil))
}

func newTestConn(t *testing.T) *Conn {
	t.Helper()
	api, err := NewAPI(WithLogger(quietLogger()))
	require.NoError(t, err)

	c, err := New(api, pion.Configuration{}, nil, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestReceiveOnlyOffer(t *testing.T) {
	c := newTestConn(t)

	raw, err := c.CreateLocalDescription(session.DescriptionOffer)
	require.NoError(t, err)

	var desc pion.SessionDescription
	require.NoError(t, json.Unmarshal(raw, &desc))
	assert.Equal(t, pion.SDPTypeOffer, desc.Type)
	assert.Contains(t, desc.SDP, "m=video")
	assert.Contains(t, desc.SDP, "m=audio")
	assert.Contains(t, desc.SDP, "a=recvonly")

	// The wire shape matches RTCSessionDescriptionInit.
	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Equal(t, "offer", generic["type"])

	require.NoError(t, c.SetLocalDescription(raw))
}

func TestDecodeErrors(t *testing.T) {
	c := newTestConn(t)

	assert.Error(t, c.SetRemoteDescription(json.RawMessage(`not json`)))
	assert.Error(t, c.SetRemoteDescription(json.RawMessage(`{"type":"offer"}`)))
	assert.Error(t, c.AddRemoteCandidate(json.RawMessage(`[1,2]`)))

	_, err := c.CreateLocalDescription(session.DescriptionKind("pranswer"))
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestConn(t)
	require.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}
