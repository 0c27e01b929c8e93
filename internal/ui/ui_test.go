package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Revaiowo/streamRTC/internal/session"
)

func TestStateText(t *testing.T) {
	tests := []struct {
		name string
		u    session.Update
		want string
	}{
		{"waiting", session.Update{State: session.Initiating}, "Waiting for someone to join..."},
		{"calling", session.Update{State: session.Initiating, RemotePeer: "0123456789abcdef"}, "Calling 01234567..."},
		{"answering", session.Update{State: session.Responding, RemotePeer: "peer"}, "Answering peer..."},
		{"connected", session.Update{State: session.Connected, RemotePeer: "peer"}, "Connected to peer, waiting for media..."},
		{"in call", session.Update{State: session.Connected, RemotePeer: "peer", RemoteMedia: true}, "In call with peer"},
		{"room full", session.Update{State: session.Failed, Err: session.ErrRoomFull}, "Room is full. Try a different room code."},
		{"denied", session.Update{State: session.Failed, Err: session.ClassifyMediaError(session.ErrPermissionDenied)}, "Camera/Microphone access denied. Please allow access and try again."},
		{"closed", session.Update{State: session.Closed}, "Left the room"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateText(tt.u))
		})
	}
}

func TestCallModelQuitsOnTerminalState(t *testing.T) {
	ui := NewCallUI(LocalMedia{Video: true, Audio: true}, nil)
	m := ui.model

	_, cmd := m.Update(updateMsg(session.Update{State: session.Connected, Room: "ABC123", Role: session.RoleInitiator, RemotePeer: "peer"}))
	require.NotNil(t, cmd)
	assert.False(t, m.connectedAt.IsZero())

	view := m.View()
	assert.Contains(t, view, "ABC123")
	assert.Contains(t, view, "initiator")
	assert.Contains(t, view, "Press q to leave")
	assert.Contains(t, view, IconCamera+" video")

	_, cmd = m.Update(updateMsg(session.Update{State: session.Failed, Err: session.ErrPeerLeft}))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, m.View(), "The other participant left the call.")
	assert.NotContains(t, m.View(), "Press q to leave")
}

func TestCallModelQuitKey(t *testing.T) {
	left := false
	ui := NewCallUI(LocalMedia{}, func() { left = true })

	_, cmd := ui.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.True(t, left)
	assert.True(t, ui.model.quitting)
}

func TestPushNeverBlocks(t *testing.T) {
	ui := NewCallUI(LocalMedia{}, nil)
	for i := 0; i < 1000; i++ {
		ui.Push(session.Update{State: session.AwaitingRole})
	}
}

func TestUpdatePrinterSkipsDuplicates(t *testing.T) {
	var buf bytes.Buffer
	p := NewUpdatePrinter(&buf)
	p.Print(session.Update{State: session.AcquiringMedia})
	p.Print(session.Update{State: session.AwaitingRole})
	p.Print(session.Update{State: session.AwaitingRole})
	p.Print(session.Update{State: session.Failed, Err: errors.New("boom")})

	assert.Equal(t,
		"[acquiring-media] Opening camera and microphone...\n"+
			"[awaiting-role] Joining room...\n"+
			"[failed] boom\n",
		buf.String())
}

func TestRenderRooms(t *testing.T) {
	var buf bytes.Buffer
	RenderRooms(&buf, []RoomRow{
		{Room: "ABC123", Members: []string{"0123456789abcdef", "fedcba9876543210"}},
		{Room: "XYZ", Members: []string{"aaaa"}},
	}, 2)

	out := buf.String()
	assert.Contains(t, out, "ABC123")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "1/2")
	assert.Contains(t, out, "01234567, fedcba98")
	assert.Contains(t, out, "OCCUPANCY")

	buf.Reset()
	RenderRooms(&buf, nil, 2)
	assert.Contains(t, buf.String(), "No active rooms")
}

func TestCallSummaryView(t *testing.T) {
	view := CallSummaryView(CallSummary{Room: "ABC123", Role: "responder", Peer: "peer", Duration: "1m0s", Packets: 42, Bytes: 3 * 1024 * 1024, Outcome: "left"})
	assert.Contains(t, view, "ABC123")
	assert.Contains(t, view, "42")
	assert.Contains(t, view, "Packets received")
	assert.Contains(t, view, "3.00 MB")
}

func TestRoomInfoView(t *testing.T) {
	view := NewRoomInfo("FLUFFY-OTTER-RAMEN", "ws://localhost:8000/ws", true).View()
	assert.Contains(t, view, "Room created!")
	assert.Contains(t, view, "FLUFFY-OTTER-RAMEN")

	assert.Contains(t, NewRoomInfo("ABC123", "ws://localhost:8000/ws", false).View(), "Joining room")
}

func TestLocalMediaString(t *testing.T) {
	assert.Equal(t, "receive only", LocalMedia{}.String())
	assert.Equal(t, "sending "+IconCamera+" video", LocalMedia{Video: true}.String())
	assert.Equal(t, "sending "+IconCamera+" video, "+IconMic+" audio", LocalMedia{Video: true, Audio: true}.String())
}

func TestCallModelShowsWaitingForPeer(t *testing.T) {
	ui := NewCallUI(LocalMedia{Audio: true}, nil)
	ui.model.Update(updateMsg(session.Update{State: session.Initiating, Room: "ABC123", Role: session.RoleInitiator}))

	view := ui.model.View()
	assert.Contains(t, view, IconWaiting)
	assert.Contains(t, view, IconMic+" audio")

	ui.model.Update(updateMsg(session.Update{State: session.Initiating, Room: "ABC123", Role: session.RoleInitiator, RemotePeer: "peer"}))
	assert.NotContains(t, ui.model.View(), IconWaiting)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerUpdateMessage(t *testing.T) {
	var out syncBuffer
	sp := NewWaitingSpinner("Connecting to server...")
	sp.out = &out
	sp.Start()

	sp.UpdateMessage("Joining room...")
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Joining room...")
	}, 2*time.Second, 10*time.Millisecond)

	sp.Success("Connected")
	sp.Stop()
	assert.Contains(t, out.String(), IconSuccess)
	assert.Contains(t, out.String(), "Connected")
}
