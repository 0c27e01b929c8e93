package session

import (
	"context"
	"encoding/json"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

// State is the orchestrator's single current state.
type State int

const (
	Idle State = iota
	AcquiringMedia
	AwaitingRole
	Initiating
	Responding
	Connected
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AcquiringMedia:
		return "acquiring-media"
	case AwaitingRole:
		return "awaiting-role"
	case Initiating:
		return "initiating"
	case Responding:
		return "responding"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether a new Enter is accepted from this state.
func (s State) Terminal() bool {
	return s == Idle || s == Failed || s == Closed
}

// Role is derived from the membership snapshot, never negotiated.
type Role int

const (
	RoleUndecided Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "undecided"
	}
}

type DescriptionKind string

const (
	DescriptionOffer  DescriptionKind = "offer"
	DescriptionAnswer DescriptionKind = "answer"
)

// LocalMedia is a handle on captured audio/video.
type LocalMedia interface {
	Stop()
}

// MediaSource acquires local media. Errors should wrap ErrPermissionDenied,
// ErrNoDevice or the matching fs errors so they can be classified.
type MediaSource interface {
	Acquire(ctx context.Context) (LocalMedia, error)
}

// PeerConnection is the connection object the orchestrator drives. Every
// description and candidate is an opaque payload.
type PeerConnection interface {
	CreateLocalDescription(kind DescriptionKind) (json.RawMessage, error)
	SetLocalDescription(desc json.RawMessage) error
	SetRemoteDescription(desc json.RawMessage) error
	AddRemoteCandidate(candidate json.RawMessage) error

	// The callbacks may be invoked from any goroutine.
	OnLocalCandidate(func(candidate json.RawMessage))
	OnRemoteTrack(func(kind string))

	Close() error
}

// PeerFactory creates a connection object with the local media attached.
type PeerFactory func(media LocalMedia) (PeerConnection, error)

// Signaler sends messages to the relay.
type Signaler interface {
	Send(msg *protocol.Message) error
}

// Update is published on every state change.
type Update struct {
	State       State
	Role        Role
	Room        string
	Self        string
	RemotePeer  string
	RemoteMedia bool
	Err         error
}
