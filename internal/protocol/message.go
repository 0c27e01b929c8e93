package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies a signaling message.
type MessageType string

// Message type constants.
const (
	// Client to relay.
	MessageTypeJoin  MessageType = "join"
	MessageTypeLeave MessageType = "leave"

	// Relayed between peers. The relay fills in From.
	MessageTypeOffer        MessageType = "offer"
	MessageTypeAnswer       MessageType = "answer"
	MessageTypeICECandidate MessageType = "ice-candidate"

	// Relay to client.
	MessageTypeWelcome     MessageType = "welcome"
	MessageTypeUsersInRoom MessageType = "users-in-room"
	MessageTypePeerJoined  MessageType = "peer-joined"
	MessageTypePeerLeft    MessageType = "peer-left"
	MessageTypeError       MessageType = "error"
)

// Error codes carried in error messages.
const (
	CodeRoomFull    = "room-full"
	CodeInvalidRoom = "invalid-room"
)

// Message is the envelope for every frame exchanged with the relay.
// Payload is never interpreted by the relay; it is forwarded byte for byte.
type Message struct {
	Type    MessageType     `json:"type" msgpack:"type"`
	From    string          `json:"from,omitempty" msgpack:"from,omitempty"`
	To      string          `json:"to,omitempty" msgpack:"to,omitempty"`
	Room    string          `json:"room,omitempty" msgpack:"room,omitempty"`
	Users   []string        `json:"users,omitempty" msgpack:"users,omitempty"`
	Peer    string          `json:"peer,omitempty" msgpack:"peer,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
	Code    string          `json:"code,omitempty" msgpack:"code,omitempty"`
	Error   string          `json:"error,omitempty" msgpack:"error,omitempty"`
}

var (
	ErrMissingType    = errors.New("missing message type")
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingRoom    = errors.New("missing room")
	ErrMissingTarget  = errors.New("missing target")
	ErrMissingPayload = errors.New("missing payload")
)

// Validate checks that a client-originated message carries the fields its
// type requires. Relay-originated types are rejected as unknown.
func (m *Message) Validate() error {
	switch m.Type {
	case "":
		return ErrMissingType
	case MessageTypeJoin, MessageTypeLeave:
		if m.Room == "" {
			return ErrMissingRoom
		}
	case MessageTypeOffer, MessageTypeAnswer:
		if m.To == "" {
			return ErrMissingTarget
		}
		if len(m.Payload) == 0 {
			return ErrMissingPayload
		}
	case MessageTypeICECandidate:
		if len(m.Payload) == 0 {
			return ErrMissingPayload
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return nil
}

// Welcome tells a freshly registered connection its own id.
func Welcome(id string) *Message {
	return &Message{Type: MessageTypeWelcome, Peer: id}
}

// UsersInRoom is the reply to a join. Users never contains the joiner; an
// empty room is encoded without a users field.
func UsersInRoom(room string, users []string) *Message {
	if users == nil {
		users = []string{}
	}
	return &Message{Type: MessageTypeUsersInRoom, Room: room, Users: users}
}

func PeerJoined(room, peer string) *Message {
	return &Message{Type: MessageTypePeerJoined, Room: room, Peer: peer}
}

func PeerLeft(room, peer string) *Message {
	return &Message{Type: MessageTypePeerLeft, Room: room, Peer: peer}
}

// ErrorMessage builds a relay error reply.
func ErrorMessage(room, code, text string) *Message {
	return &Message{Type: MessageTypeError, Room: room, Code: code, Error: text}
}

// Relayed returns the copy of m that is delivered to a target: the relay
// stamps the sender and strips everything but the payload.
func Relayed(m *Message, from string) *Message {
	return &Message{
		Type:    m.Type,
		From:    from,
		To:      m.To,
		Payload: m.Payload,
	}
}
