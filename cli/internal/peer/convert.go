package peer

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

func toWire(desc *webrtc.SessionDescription) *protocol.SessionDescription {
	return &protocol.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func fromWire(desc *protocol.SessionDescription, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	if desc == nil || desc.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: empty session description", protocol.ErrMalformed)
	}
	if desc.Type != "" && webrtc.NewSDPType(desc.Type) != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: got %s description, want %s", protocol.ErrMalformed, desc.Type, want)
	}
	return webrtc.SessionDescription{Type: want, SDP: desc.SDP}, nil
}

func candidateToWire(c webrtc.ICECandidateInit) *protocol.ICECandidate {
	return &protocol.ICECandidate{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func candidateFromWire(c *protocol.ICECandidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}
