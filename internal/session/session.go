package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

const eventBuffer = 256

// Config wires a Session to its collaborators.
type Config struct {
	Media    MediaSource
	NewPeer  PeerFactory
	Signaler Signaler
	Logger   *slog.Logger

	// OnUpdate is called from the session goroutine after every change.
	// It must not block.
	OnUpdate func(Update)
}

type event interface{}

type (
	enterEvent   struct{ room string }
	leaveEvent   struct{}
	messageEvent struct{ msg *protocol.Message }
	mediaEvent   struct {
		gen   int
		media LocalMedia
		err   error
	}
	localCandidateEvent struct {
		gen       int
		candidate json.RawMessage
	}
	remoteTrackEvent struct {
		gen  int
		kind string
	}
	signalingClosedEvent struct{}
)

type inboundCandidate struct {
	from      string
	candidate json.RawMessage
}

// Session is the per-client orchestrator. All state below events is owned
// by the goroutine running Run; every input arrives as an event.
type Session struct {
	cfg    Config
	logger *slog.Logger

	events chan event
	done   chan struct{}

	mu   sync.Mutex
	last Update

	ctx           context.Context
	cancelAcquire context.CancelFunc

	// gen increments on every teardown so that callbacks from an old
	// connection object are recognised and ignored.
	gen int

	state       State
	role        Role
	room        string
	self        string
	joined      bool
	remotePeer  string
	pendingPeer string
	remoteMedia bool
	err         error

	media LocalMedia
	pc    PeerConnection

	localOffer    json.RawMessage
	offerSent     bool
	answerSent    bool
	remoteDescSet bool

	outbound []json.RawMessage
	inbound  []inboundCandidate
}

func New(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:    cfg,
		logger: logger.With("component", "session"),
		events: make(chan event, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Enter starts a session in room. It is ignored unless the session is idle,
// failed or closed.
func (s *Session) Enter(room string) { s.post(enterEvent{room: room}) }

// Leave tears the session down and tells the relay.
func (s *Session) Leave() { s.post(leaveEvent{}) }

// Deliver hands a message from the relay to the session.
func (s *Session) Deliver(msg *protocol.Message) { s.post(messageEvent{msg: msg}) }

// Snapshot returns the most recently published update.
func (s *Session) Snapshot() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) post(ev event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Run processes events until ctx is cancelled, then tears the session down.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)
	s.ctx = ctx

	for {
		select {
		case <-ctx.Done():
			if !s.state.Terminal() {
				s.teardown()
				s.setState(Closed, nil)
			}
			return ctx.Err()

		case ev := <-s.events:
			s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) {
	switch ev := ev.(type) {
	case enterEvent:
		s.enter(ev.room)
	case leaveEvent:
		s.leave()
	case mediaEvent:
		s.mediaAcquired(ev)
	case localCandidateEvent:
		if ev.gen == s.gen {
			s.localCandidate(ev.candidate)
		}
	case remoteTrackEvent:
		if ev.gen == s.gen && !s.state.Terminal() && !s.remoteMedia {
			s.logger.Info("remote track received", "kind", ev.kind, "peer", s.remotePeer)
			s.remoteMedia = true
			s.publish()
		}
	case messageEvent:
		s.message(ev.msg)
	case signalingClosedEvent:
		if !s.state.Terminal() {
			s.joined = false
			s.fail(ErrSignalingClosed)
		}
	}
}

// enter resets the session and asks for local media in the background.
func (s *Session) enter(rawRoom string) {
	if !s.state.Terminal() {
		s.logger.Warn("enter ignored: session active", "state", s.state, "room", s.room)
		return
	}

	room, err := protocol.NormalizeRoomID(rawRoom)
	if err != nil {
		s.reset()
		s.room = rawRoom
		s.setState(Failed, ErrInvalidRoom)
		return
	}

	s.reset()
	s.room = room
	s.setState(AcquiringMedia, nil)

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelAcquire = cancel
	gen := s.gen
	go func() {
		media, err := s.cfg.Media.Acquire(ctx)
		if !s.post(mediaEvent{gen: gen, media: media, err: err}) && media != nil {
			media.Stop()
		}
	}()
}

// mediaAcquired builds the connection object around the captured media and
// joins the room. Results from an older generation are released.
func (s *Session) mediaAcquired(ev mediaEvent) {
	if ev.gen != s.gen || s.state != AcquiringMedia {
		if ev.media != nil {
			ev.media.Stop()
		}
		return
	}
	s.cancelAcquire = nil

	if ev.err != nil {
		merr := ClassifyMediaError(ev.err)
		s.logger.Warn("media acquisition failed", "reason", merr.Reason, "error", ev.err)
		s.setState(Failed, merr)
		return
	}
	s.media = ev.media

	pc, err := s.cfg.NewPeer(ev.media)
	if err != nil {
		s.fail(NewError("create peer connection", err))
		return
	}
	s.pc = pc

	gen := s.gen
	pc.OnLocalCandidate(func(c json.RawMessage) {
		s.post(localCandidateEvent{gen: gen, candidate: c})
	})
	pc.OnRemoteTrack(func(kind string) {
		s.post(remoteTrackEvent{gen: gen, kind: kind})
	})

	if err := s.send(&protocol.Message{Type: protocol.MessageTypeJoin, Room: s.room}); err != nil {
		s.fail(NewError("join room", err))
		return
	}
	s.joined = true
	s.setState(AwaitingRole, nil)
}

func (s *Session) message(msg *protocol.Message) {
	switch msg.Type {
	case protocol.MessageTypeWelcome:
		s.self = msg.Peer
	case protocol.MessageTypeUsersInRoom:
		s.usersInRoom(msg)
	case protocol.MessageTypePeerJoined:
		s.peerJoined(msg)
	case protocol.MessageTypeOffer:
		s.offer(msg)
	case protocol.MessageTypeAnswer:
		s.answer(msg)
	case protocol.MessageTypeICECandidate:
		s.remoteCandidate(msg)
	case protocol.MessageTypePeerLeft:
		s.peerLeft(msg)
	case protocol.MessageTypeError:
		s.relayError(msg)
	default:
		s.logger.Debug("ignoring message", "type", msg.Type)
	}
}

// usersInRoom picks the role: an empty room makes us the initiator,
// otherwise we answer the member already there.
func (s *Session) usersInRoom(msg *protocol.Message) {
	if s.state != AwaitingRole || msg.Room != s.room {
		s.logger.Debug("ignoring users-in-room", "state", s.state, "room", msg.Room)
		return
	}

	users := slices.DeleteFunc(slices.Clone(msg.Users), func(id string) bool {
		return id == "" || id == s.self
	})

	if len(users) == 0 {
		s.becomeInitiator()
		return
	}
	s.becomeResponder(users[0])
}

func (s *Session) becomeInitiator() {
	offer, err := s.pc.CreateLocalDescription(DescriptionOffer)
	if err != nil {
		s.fail(NewError("create offer", err))
		return
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		s.fail(NewError("set local description", err))
		return
	}

	// The offer waits until somebody joins.
	s.localOffer = offer
	s.role = RoleInitiator
	s.setState(Initiating, nil)

	if peer := s.pendingPeer; peer != "" {
		s.pendingPeer = ""
		s.sendOffer(peer)
	}
}

func (s *Session) becomeResponder(peer string) {
	s.role = RoleResponder
	s.remotePeer = peer
	s.setState(Responding, nil)
}

func (s *Session) peerJoined(msg *protocol.Message) {
	if msg.Room != s.room || msg.Peer == "" || msg.Peer == s.self {
		return
	}

	switch s.state {
	case AwaitingRole:
		s.pendingPeer = msg.Peer
	case Initiating:
		if s.remotePeer == "" {
			s.sendOffer(msg.Peer)
			return
		}
		if s.remotePeer != msg.Peer {
			s.logger.Warn("ignoring second peer", "peer", msg.Peer, "remote", s.remotePeer)
		}
	default:
		s.logger.Debug("ignoring peer-joined", "state", s.state, "peer", msg.Peer)
	}
}

func (s *Session) sendOffer(peer string) {
	s.remotePeer = peer
	err := s.send(&protocol.Message{Type: protocol.MessageTypeOffer, To: peer, Payload: s.localOffer})
	if err != nil {
		s.fail(NewError("send offer", err))
		return
	}
	s.offerSent = true
	s.logger.Info("offer sent", "peer", peer)
	s.flushOutbound()
	s.publish()
}

// offer sets the remote description, answers it and flushes the candidates
// that arrived early.
func (s *Session) offer(msg *protocol.Message) {
	if s.state != Responding || msg.From != s.remotePeer {
		s.logger.Warn("ignoring unexpected offer", "state", s.state, "from", msg.From)
		return
	}
	if s.answerSent {
		return
	}

	if err := s.pc.SetRemoteDescription(msg.Payload); err != nil {
		s.fail(NewError("set remote description", err))
		return
	}
	s.remoteDescSet = true

	answer, err := s.pc.CreateLocalDescription(DescriptionAnswer)
	if err != nil {
		s.fail(NewError("create answer", err))
		return
	}
	if err := s.pc.SetLocalDescription(answer); err != nil {
		s.fail(NewError("set local description", err))
		return
	}
	if err := s.send(&protocol.Message{Type: protocol.MessageTypeAnswer, To: msg.From, Payload: answer}); err != nil {
		s.fail(NewError("send answer", err))
		return
	}
	s.answerSent = true
	s.logger.Info("answer sent", "peer", msg.From)

	s.flushInbound()
	s.flushOutbound()
	s.setState(Connected, nil)
}

// answer completes the initiator's negotiation.
func (s *Session) answer(msg *protocol.Message) {
	if s.state != Initiating || !s.offerSent || msg.From != s.remotePeer {
		s.logger.Warn("ignoring unexpected answer", "state", s.state, "from", msg.From, "offer_sent", s.offerSent)
		return
	}

	if err := s.pc.SetRemoteDescription(msg.Payload); err != nil {
		s.fail(NewError("set remote description", err))
		return
	}
	s.remoteDescSet = true

	s.flushInbound()
	s.setState(Connected, nil)
}

// localCandidate holds candidates until we know who to send them to.
func (s *Session) localCandidate(c json.RawMessage) {
	if s.state.Terminal() {
		return
	}
	if s.remotePeer == "" || (s.role == RoleInitiator && !s.offerSent) {
		s.outbound = append(s.outbound, c)
		return
	}
	s.sendCandidate(c)
}

func (s *Session) sendCandidate(c json.RawMessage) {
	err := s.send(&protocol.Message{Type: protocol.MessageTypeICECandidate, To: s.remotePeer, Payload: c})
	if err != nil {
		s.logger.Warn("failed to send candidate", "peer", s.remotePeer, "error", err)
	}
}

func (s *Session) flushOutbound() {
	queued := s.outbound
	s.outbound = nil
	for _, c := range queued {
		s.sendCandidate(c)
	}
}

// remoteCandidate queues candidates until the remote description is set.
func (s *Session) remoteCandidate(msg *protocol.Message) {
	switch s.state {
	case AwaitingRole, Initiating, Responding, Connected:
	default:
		s.logger.Debug("ignoring candidate", "state", s.state, "from", msg.From)
		return
	}
	if s.remotePeer != "" && msg.From != s.remotePeer {
		s.logger.Warn("ignoring candidate from unknown peer", "from", msg.From, "remote", s.remotePeer)
		return
	}

	if !s.remoteDescSet {
		s.inbound = append(s.inbound, inboundCandidate{from: msg.From, candidate: msg.Payload})
		return
	}
	s.applyCandidate(msg.From, msg.Payload)
}

func (s *Session) applyCandidate(from string, c json.RawMessage) {
	if err := s.pc.AddRemoteCandidate(c); err != nil {
		s.logger.Warn("failed to add remote candidate", "from", from, "error", err)
	}
}

func (s *Session) flushInbound() {
	queued := s.inbound
	s.inbound = nil
	for _, ic := range queued {
		if ic.from != s.remotePeer {
			s.logger.Debug("discarding buffered candidate", "from", ic.from)
			continue
		}
		s.applyCandidate(ic.from, ic.candidate)
	}
}

// peerLeft ends the call when the other participant leaves.
func (s *Session) peerLeft(msg *protocol.Message) {
	if msg.Peer == "" {
		return
	}
	if msg.Peer == s.pendingPeer {
		s.pendingPeer = ""
		return
	}
	if msg.Peer != s.remotePeer || s.state.Terminal() {
		return
	}

	s.logger.Info("remote peer left", "peer", msg.Peer)
	s.fail(ErrPeerLeft)
}

func (s *Session) relayError(msg *protocol.Message) {
	s.logger.Warn("relay error", "code", msg.Code, "error", msg.Error, "room", msg.Room)
	if s.state != AwaitingRole {
		return
	}

	// A rejected join never made us a member.
	s.joined = false
	switch msg.Code {
	case protocol.CodeRoomFull:
		s.fail(ErrRoomFull)
	case protocol.CodeInvalidRoom:
		s.fail(ErrInvalidRoom)
	}
}

func (s *Session) leave() {
	if s.state == Idle || s.state == Closed {
		return
	}
	s.teardown()
	s.setState(Closed, nil)
}

// SignalingClosed tells the session its relay connection is gone. An
// active session fails since it can no longer make progress.
func (s *Session) SignalingClosed() { s.post(signalingClosedEvent{}) }

func (s *Session) fail(err error) {
	s.teardown()
	s.setState(Failed, err)
}

// teardown closes the connection object, stops media and leaves the room.
func (s *Session) teardown() {
	s.gen++

	if s.cancelAcquire != nil {
		s.cancelAcquire()
		s.cancelAcquire = nil
	}
	if s.pc != nil {
		if err := s.pc.Close(); err != nil {
			s.logger.Debug("close peer connection", "error", err)
		}
		s.pc = nil
	}
	if s.media != nil {
		s.media.Stop()
		s.media = nil
	}
	if s.joined {
		s.joined = false
		if err := s.send(&protocol.Message{Type: protocol.MessageTypeLeave, Room: s.room}); err != nil {
			s.logger.Debug("send leave", "error", err)
		}
	}

	s.outbound = nil
	s.inbound = nil
}

func (s *Session) reset() {
	s.teardown()
	s.role = RoleUndecided
	s.remotePeer = ""
	s.pendingPeer = ""
	s.remoteMedia = false
	s.err = nil
	s.localOffer = nil
	s.offerSent = false
	s.answerSent = false
	s.remoteDescSet = false
}

func (s *Session) send(msg *protocol.Message) error {
	if s.cfg.Signaler == nil {
		return ErrSignalingClosed
	}
	return s.cfg.Signaler.Send(msg)
}

func (s *Session) setState(state State, err error) {
	if state != s.state {
		s.logger.Info("state changed", "from", s.state, "to", state, "room", s.room)
	}
	s.state = state
	s.err = err
	s.publish()
}

func (s *Session) publish() {
	u := Update{
		State:       s.state,
		Role:        s.role,
		Room:        s.room,
		Self:        s.self,
		RemotePeer:  s.remotePeer,
		RemoteMedia: s.remoteMedia,
		Err:         s.err,
	}

	s.mu.Lock()
	s.last = u
	s.mu.Unlock()

	if s.cfg.OnUpdate != nil {
		s.cfg.OnUpdate(u)
	}
}
