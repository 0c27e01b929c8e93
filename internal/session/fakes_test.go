package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMedia struct {
	mu      sync.Mutex
	stopped int
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	m.stopped++
	m.mu.Unlock()
}

func (m *fakeMedia) stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

type fakeSource struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	handles []*fakeMedia
}

func (s *fakeSource) Acquire(ctx context.Context) (LocalMedia, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	m := &fakeMedia{}
	s.handles = append(s.handles, m)
	return m, nil
}

// fakePeer is a connection object that records every call and refuses to
// apply a candidate before a remote description exists.
type fakePeer struct {
	name string

	mu          sync.Mutex
	calls       []string
	localDesc   json.RawMessage
	remoteDesc  json.RawMessage
	candidates  []string
	violations  int
	closed      bool
	onCandidate func(json.RawMessage)
	onTrack     func(string)
	failCreate  error
}

func (p *fakePeer) record(call string) {
	p.calls = append(p.calls, call)
}

func (p *fakePeer) CreateLocalDescription(kind DescriptionKind) (json.RawMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("create-" + string(kind))
	if p.failCreate != nil {
		return nil, p.failCreate
	}
	return json.RawMessage(fmt.Sprintf(`{"type":%q,"sdp":"%s from %s"}`, kind, kind, p.name)), nil
}

func (p *fakePeer) SetLocalDescription(desc json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("set-local")
	p.localDesc = desc
	return nil
}

func (p *fakePeer) SetRemoteDescription(desc json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("set-remote")
	p.remoteDesc = desc
	return nil
}

func (p *fakePeer) AddRemoteCandidate(c json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record("add-candidate")
	if p.remoteDesc == nil {
		p.violations++
		return errors.New("no remote description")
	}
	p.candidates = append(p.candidates, string(c))
	return nil
}

func (p *fakePeer) OnLocalCandidate(f func(json.RawMessage)) {
	p.mu.Lock()
	p.onCandidate = f
	p.mu.Unlock()
}

func (p *fakePeer) OnRemoteTrack(f func(string)) {
	p.mu.Lock()
	p.onTrack = f
	p.mu.Unlock()
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakePeer) emitCandidate(c string) {
	p.mu.Lock()
	f := p.onCandidate
	p.mu.Unlock()
	f(json.RawMessage(c))
}

func (p *fakePeer) emitTrack(kind string) {
	p.mu.Lock()
	f := p.onTrack
	p.mu.Unlock()
	f(kind)
}

func (p *fakePeer) snapshot() (remote json.RawMessage, candidates []string, violations int, closed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteDesc, append([]string(nil), p.candidates...), p.violations, p.closed
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []*protocol.Message
	err  error
}

func (f *fakeSignaler) Send(msg *protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSignaler) messages() []*protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*protocol.Message(nil), f.sent...)
}

func (f *fakeSignaler) ofType(t protocol.MessageType) []*protocol.Message {
	var out []*protocol.Message
	for _, m := range f.messages() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// harness runs one session against fakes.
type harness struct {
	t       *testing.T
	s       *Session
	source  *fakeSource
	signal  *fakeSignaler
	cancel  context.CancelFunc
	updates chan Update

	mu    sync.Mutex
	peers []*fakePeer
}

func newHarness(t *testing.T, name string) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		source:  &fakeSource{},
		signal:  &fakeSignaler{},
		updates: make(chan Update, 256),
	}
	h.s = New(Config{
		Media:    h.source,
		Signaler: h.signal,
		Logger:   quietLogger(),
		NewPeer: func(LocalMedia) (PeerConnection, error) {
			p := &fakePeer{name: name}
			h.mu.Lock()
			h.peers = append(h.peers, p)
			h.mu.Unlock()
			return p, nil
		},
		OnUpdate: func(u Update) {
			select {
			case h.updates <- u:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.s.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-h.s.Done()
	})
	return h
}

func (h *harness) peer() *fakePeer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.peers) == 0 {
		return nil
	}
	return h.peers[len(h.peers)-1]
}

func (h *harness) waitState(want State) Update {
	h.t.Helper()
	var last Update
	require.Eventually(h.t, func() bool {
		last = h.s.Snapshot()
		return last.State == want
	}, 2*time.Second, time.Millisecond, "want state %s, last %s", want, h.s.Snapshot().State)
	return last
}

func (h *harness) waitSent(t protocol.MessageType, n int) []*protocol.Message {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return len(h.signal.ofType(t)) >= n
	}, 2*time.Second, time.Millisecond, "want %d %s messages", n, t)
	return h.signal.ofType(t)
}

// awaitRole drives the session up to AwaitingRole as connection self.
func (h *harness) awaitRole(self, room string) {
	h.t.Helper()
	h.s.Deliver(protocol.Welcome(self))
	h.s.Enter(room)
	h.waitState(AwaitingRole)
}
