package peer

import "errors"

var (
	ErrMissingPeerLink  = errors.New("no peer link for sender")
	ErrSelfAddressed    = errors.New("envelope addressed from self")
	ErrUnexpectedAnswer = errors.New("answer without a pending offer")
	ErrUnexpectedOffer  = errors.New("offer out of turn")
	ErrLinkClosed       = errors.New("peer link closed")
	ErrNoIdentity       = errors.New("client id not assigned yet")
	ErrAnswerTimeout    = errors.New("timed out waiting for answer")
)
