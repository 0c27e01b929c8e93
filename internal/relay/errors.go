package relay

import "errors"

var (
	ErrRoomFull    = errors.New("room is full")
	ErrInvalidRoom = errors.New("invalid room id")
	ErrHubClosed   = errors.New("hub is closed")
)

// Reasons a message is dropped, used as the metrics label.
const (
	dropMalformed     = "malformed"
	dropUnknownSender = "unknown-sender"
	dropUnknownTarget = "unknown-target"
	dropNotInRoom     = "not-in-room"
	dropNoRecipients  = "no-recipients"
	dropSlowConsumer  = "slow-consumer"
	dropRateLimited   = "rate-limited"
	dropRejected      = "rejected"
)
