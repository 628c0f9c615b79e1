package call

import (
	"errors"
	"fmt"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

var (
	ErrInvalidRoom   = errors.New("room does not exist")
	ErrAlreadyInRoom = errors.New("already in a room")
	ErrNotInRoom     = errors.New("not in a room")
	ErrRoomEnded     = errors.New("room ended")
	ErrDisconnected  = errors.New("disconnected from relay")
	ErrRelay         = errors.New("relay error")
)

// Error is an operation that failed, optionally against one peer.
type Error struct {
	Op   string
	Peer string
	Err  error
}

func (e *Error) Error() string {
	if e.Peer != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Peer, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err as a failed op.
func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// NewPeerError wraps err as a failed op against peer.
func NewPeerError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

// relayError maps a relay error code to a sentinel.
func relayError(code string) error {
	switch code {
	case protocol.ErrCodeInvalidRoom:
		return ErrInvalidRoom
	case protocol.ErrCodeAlreadyInRoom:
		return ErrAlreadyInRoom
	}
	return fmt.Errorf("%w: %s", ErrRelay, code)
}
