package signaling

import "errors"

var (
	ErrInvalidRoom   = errors.New("room does not exist")
	ErrAlreadyInRoom = errors.New("client is already in a room")
	ErrHubStopped    = errors.New("hub stopped")
)
