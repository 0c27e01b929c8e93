package session

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoDevice         = errors.New("no capture device")
	ErrCaptureFailed    = errors.New("capture failed")

	ErrPeerLeft        = errors.New("peer left the room")
	ErrRoomFull        = errors.New("room is full")
	ErrInvalidRoom     = errors.New("invalid room id")
	ErrSignalingClosed = errors.New("signaling connection closed")
)

// MediaReason classifies a capture failure for the user.
type MediaReason int

const (
	ReasonOther MediaReason = iota
	ReasonPermissionDenied
	ReasonNoDevice
)

func (r MediaReason) String() string {
	switch r {
	case ReasonPermissionDenied:
		return "permission-denied"
	case ReasonNoDevice:
		return "no-device"
	default:
		return "other"
	}
}

// MediaError is returned when local media could not be acquired. It is
// terminal for the session but the user may retry.
type MediaError struct {
	Reason MediaReason
	Err    error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("acquire media (%s): %v", e.Reason, e.Err)
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

func (e *MediaError) Is(target error) bool {
	switch target {
	case ErrPermissionDenied:
		return e.Reason == ReasonPermissionDenied
	case ErrNoDevice:
		return e.Reason == ReasonNoDevice
	case ErrCaptureFailed:
		return e.Reason == ReasonOther
	}
	return false
}

// UserMessage is the text shown to the user.
func (e *MediaError) UserMessage() string {
	switch e.Reason {
	case ReasonPermissionDenied:
		return "Camera/Microphone access denied. Please allow access and try again."
	case ReasonNoDevice:
		return "No camera or microphone found. Check your devices."
	default:
		return fmt.Sprintf("Camera/Mic access failed: %v", e.Err)
	}
}

// ClassifyMediaError wraps a capture error in a MediaError.
func ClassifyMediaError(err error) *MediaError {
	var me *MediaError
	if errors.As(err, &me) {
		return me
	}

	switch {
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, fs.ErrPermission):
		return &MediaError{Reason: ReasonPermissionDenied, Err: err}
	case errors.Is(err, ErrNoDevice), errors.Is(err, fs.ErrNotExist):
		return &MediaError{Reason: ReasonNoDevice, Err: err}
	default:
		return &MediaError{Reason: ReasonOther, Err: err}
	}
}

// OpError records which step of the session failed.
type OpError struct {
	Op      string
	Err     error
	Details string
}

func (e *OpError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *OpError {
	return &OpError{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *OpError {
	return &OpError{Op: op, Err: err, Details: details}
}

// UserMessage returns the text to show for err.
func UserMessage(err error) string {
	var me *MediaError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &me):
		return me.UserMessage()
	case errors.Is(err, ErrRoomFull):
		return "Room is full. Try a different room code."
	case errors.Is(err, ErrPeerLeft):
		return "The other participant left the call."
	case errors.Is(err, ErrInvalidRoom):
		return "That room code is not valid."
	default:
		return err.Error()
	}
}
