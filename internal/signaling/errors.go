package signaling

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrRoomFull          = errors.New("room is full")
	ErrNotInRoom         = errors.New("not in a room")
	ErrPeerUnreachable   = errors.New("peer unreachable")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrBadMessage        = errors.New("bad message")
)

// Wire codes carried in error frames.
const (
	CodeAlreadyInRoom     = "already-in-room"
	CodeRoomFull          = "room-full"
	CodeNotInRoom         = "not-in-room"
	CodePeerUnreachable   = "peer-unreachable"
	CodeInvalidTransition = "invalid-transition"
	CodeBadMessage        = "bad-message"
	CodeInternal          = "internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrAlreadyInRoom, CodeAlreadyInRoom},
	{ErrRoomFull, CodeRoomFull},
	{ErrNotInRoom, CodeNotInRoom},
	{ErrPeerUnreachable, CodePeerUnreachable},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrBadMessage, CodeBadMessage},
}

// Error records a failed relay operation.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

func WrapError(op string, err error, details string) *Error {
	return &Error{Op: op, Err: err, Details: details}
}

// CodeOf maps err to its wire code.
func CodeOf(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ErrorFromCode is the inverse of CodeOf, used by clients to turn an error
// frame back into a sentinel they can match with errors.Is.
func ErrorFromCode(code, message string) error {
	for _, c := range codes {
		if c.code == code {
			return WrapError("server", c.err, message)
		}
	}
	return fmt.Errorf("server error %s: %s", code, message)
}
