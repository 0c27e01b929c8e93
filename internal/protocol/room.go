package protocol

import (
	"errors"
	"strings"
)

// MaxRoomIDLength bounds room identifiers accepted by the relay.
const MaxRoomIDLength = 64

var ErrInvalidRoomID = errors.New("invalid room id")

// NormalizeRoomID trims and upper-cases a room id so that "abc123" and
// "ABC123" name the same room.
func NormalizeRoomID(room string) (string, error) {
	room = strings.ToUpper(strings.TrimSpace(room))
	if room == "" || len(room) > MaxRoomIDLength {
		return "", ErrInvalidRoomID
	}
	for _, r := range room {
		if r < 0x20 || r == 0x7f {
			return "", ErrInvalidRoomID
		}
	}
	return room, nil
}
