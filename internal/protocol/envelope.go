// Package protocol defines the signaling envelope exchanged between warpcall
// participants and the relay.
package protocol

import (
	"errors"
	"fmt"
	"strings"
)

// ClientID identifies one transport connection on the relay.
type ClientID = string

// RoomID identifies a room. See ValidRoomID for the format.
type RoomID = string

// Type is the envelope discriminator.
type Type string

// Envelope types.
const (
	TypeStart    Type = "start"
	TypeJoin     Type = "join"
	TypeEnd      Type = "end"
	TypeLeave    Type = "leave"
	TypeUsername Type = "username"
	TypeMessage  Type = "message"
	TypeOffer    Type = "offer"
	TypeAnswer   Type = "answer"
	TypeICE      Type = "ice"
	TypeError    Type = "error"

	// TypeRenegotiate asks the remote end of an established link to send a
	// fresh offer.
	TypeRenegotiate Type = "renegotiate"
)

// Error codes carried in the error field of TypeError envelopes.
const (
	ErrCodeInvalidRoom      = "INVALID_ROOM"
	ErrCodeMalformedMessage = "MALFORMED_MESSAGE"
	ErrCodeAlreadyInRoom    = "ALREADY_IN_ROOM"
)

// MediaKind names the media a PeerLink carries.
type MediaKind string

const (
	MediaVideo       MediaKind = "video"
	MediaScreenshare MediaKind = "screenshare"
	MediaAudio       MediaKind = "audio"
)

// ScreenshareSuffix is appended to a ClientID to form the logical peer id of
// a screenshare link.
const ScreenshareSuffix = "-screenshare"

// ErrMalformed is returned when a frame cannot be decoded into a valid Envelope.
var ErrMalformed = errors.New("protocol: malformed envelope")

// SessionDescription is an SDP offer or answer in the browser's JSON form.
type SessionDescription struct {
	Type string `json:"type" msgpack:"type"`
	SDP  string `json:"sdp" msgpack:"sdp"`
}

// ICECandidate is a trickled candidate in the browser's JSON form.
type ICECandidate struct {
	Candidate        string  `json:"candidate" msgpack:"candidate"`
	SDPMid           *string `json:"sdpMid,omitempty" msgpack:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty" msgpack:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty" msgpack:"usernameFragment,omitempty"`
}

// Envelope is a single signaling message. Which fields are set depends on Type.
type Envelope struct {
	Type Type `json:"type" msgpack:"type"`

	// Addressing. From is injected by the relay and never trusted inbound.
	To   ClientID `json:"to,omitempty" msgpack:"to,omitempty"`
	From ClientID `json:"from,omitempty" msgpack:"from,omitempty"`

	// start, join, end
	RoomID   RoomID     `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	Rooms    []RoomID   `json:"rooms,omitempty" msgpack:"rooms,omitempty"`
	ID       ClientID   `json:"id,omitempty" msgpack:"id,omitempty"`
	Position int        `json:"position,omitempty" msgpack:"position,omitempty"`
	Users    []ClientID `json:"users,omitempty" msgpack:"users,omitempty"`

	// username, message
	Username string `json:"username,omitempty" msgpack:"username,omitempty"`
	Message  string `json:"message,omitempty" msgpack:"message,omitempty"`
	Sender   string `json:"sender,omitempty" msgpack:"sender,omitempty"`

	// offer, answer, ice
	MediaKind MediaKind           `json:"mediaKind,omitempty" msgpack:"mediaKind,omitempty"`
	Offer     *SessionDescription `json:"offer,omitempty" msgpack:"offer,omitempty"`
	Answer    *SessionDescription `json:"answer,omitempty" msgpack:"answer,omitempty"`
	ICE       *ICECandidate       `json:"ice,omitempty" msgpack:"ice,omitempty"`

	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Validate checks that an envelope sent by a participant carries the fields
// its type requires. Unknown types are valid; the relay forwards them as-is.
func (e *Envelope) Validate() error {
	switch e.Type {
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformed)
	case TypeJoin:
		if e.RoomID == "" {
			return fmt.Errorf("%w: join without roomId", ErrMalformed)
		}
	case TypeUsername:
		if strings.TrimSpace(e.Username) == "" {
			return fmt.Errorf("%w: empty username", ErrMalformed)
		}
	case TypeOffer:
		if e.Offer == nil || e.Offer.SDP == "" {
			return fmt.Errorf("%w: offer without sdp", ErrMalformed)
		}
	case TypeAnswer:
		if e.Answer == nil || e.Answer.SDP == "" {
			return fmt.Errorf("%w: answer without sdp", ErrMalformed)
		}
	case TypeICE:
		if e.ICE == nil {
			return fmt.Errorf("%w: ice without candidate", ErrMalformed)
		}
	}
	if e.MediaKind != "" && !e.MediaKind.Valid() {
		return fmt.Errorf("%w: unknown media kind %q", ErrMalformed, e.MediaKind)
	}
	return nil
}

// Valid reports whether k is one of the known media kinds.
func (k MediaKind) Valid() bool {
	switch k {
	case MediaVideo, MediaScreenshare, MediaAudio:
		return true
	}
	return false
}

// OrVideo returns k, or MediaVideo when k is empty.
func (k MediaKind) OrVideo() MediaKind {
	if k == "" {
		return MediaVideo
	}
	return k
}

// LogicalPeerID returns the key a participant uses for the link to id
// carrying kind. Screenshare links get their own identity so they never
// collide with the camera link to the same participant.
func LogicalPeerID(id ClientID, kind MediaKind) string {
	if kind == MediaScreenshare {
		return BaseClientID(id) + ScreenshareSuffix
	}
	return BaseClientID(id)
}

// BaseClientID strips the screenshare suffix, if any.
func BaseClientID(id string) ClientID {
	base, _ := strings.CutSuffix(id, ScreenshareSuffix)
	return base
}

// NewError builds an error envelope.
func NewError(code string) *Envelope {
	return &Envelope{Type: TypeError, Error: code}
}
