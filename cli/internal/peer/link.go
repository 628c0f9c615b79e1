package peer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// MaxPendingICE bounds the candidates buffered per link while its remote
// description is unset.
const MaxPendingICE = 64

// State is the negotiation state of a Link.
type State int

const (
	StateIdle State = iota
	StateOffering
	StateAwaitingAnswer
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOffering:
		return "offering"
	case StateAwaitingAnswer:
		return "awaiting-answer"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Link is one peer connection to one remote participant for one media kind.
// Negotiation steps on a link are serialized by mu.
type Link struct {
	id     string
	remote protocol.ClientID
	kind   protocol.MediaKind
	m      *Manager

	// pc is replaced when a first offer loses glare; current mirrors it for
	// callbacks, which ignore events from a replaced connection.
	pc      *webrtc.PeerConnection
	current atomic.Pointer[webrtc.PeerConnection]

	mu          sync.Mutex
	state       State
	remoteSet   bool
	negotiated  bool
	pendingICE  []webrtc.ICECandidateInit
	renegotiate bool
	attached    map[string]*webrtc.RTPSender
	answerTimer *time.Timer
	timerGen    int
	offers      int

	// Local candidates are held back until the first description has gone
	// out so the remote never sees a candidate for a link it doesn't have.
	sigMu     sync.Mutex
	described bool
	outbox    []webrtc.ICECandidateInit

	goneOnce sync.Once
}

func newLink(m *Manager, remote protocol.ClientID, kind protocol.MediaKind, pc *webrtc.PeerConnection, state State) *Link {
	l := &Link{
		id:       protocol.LogicalPeerID(remote, kind),
		remote:   remote,
		kind:     kind,
		m:        m,
		state:    state,
		attached: make(map[string]*webrtc.RTPSender),
	}
	l.bind(pc)
	return l
}

func (l *Link) bind(pc *webrtc.PeerConnection) {
	l.pc = pc
	l.current.Store(pc)

	live := func() bool { return l.current.Load() == pc }
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if live() {
			l.onLocalCandidate(c)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, r *webrtc.RTPReceiver) {
		if live() {
			l.onTrack(track, r)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if live() {
			l.onConnectionState(state)
		}
	})
}

// rebuild swaps in a fresh peer connection for a link whose first offer was
// never answered. Remote candidates buffered so far are kept.
func (l *Link) rebuild() error {
	pc, err := l.m.factory()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	old := l.pc

	l.sigMu.Lock()
	l.described = false
	l.outbox = nil
	l.sigMu.Unlock()

	l.bind(pc)
	l.stopAnswerTimer()
	l.attached = make(map[string]*webrtc.RTPSender)
	l.remoteSet = false
	l.state = StateIdle

	go func() {
		if err := old.Close(); err != nil {
			slog.Debug("close replaced peer connection", "peer", l.id, "err", err)
		}
	}()
	return nil
}

// ID is the logical peer id: the remote client id, suffixed for screenshare.
func (l *Link) ID() string { return l.id }

// Remote is the remote participant's client id.
func (l *Link) Remote() protocol.ClientID { return l.remote }

// Kind is the media this link carries.
func (l *Link) Kind() protocol.MediaKind { return l.kind }

// State returns the current negotiation state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Offers counts the offers this link has sent.
func (l *Link) Offers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.offers
}

// PeerConnection exposes the underlying connection.
func (l *Link) PeerConnection() *webrtc.PeerConnection { return l.current.Load() }

// leads reports whether this side sends the offers once the link is
// established: the smaller client id does, the other side asks for one.
func (l *Link) leads() bool { return l.m.Self() < l.remote }

// attach adds every track not already on the link and reports whether
// anything was added. Tracks are keyed by id so repeated calls are no-ops.
func (l *Link) attach(tracks []webrtc.TrackLocal) (bool, error) {
	added := false
	for _, track := range tracks {
		if _, ok := l.attached[track.ID()]; ok {
			continue
		}
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return added, fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		l.attached[track.ID()] = sender
		added = true
		go drainRTCP(sender)
	}
	return added, nil
}

// negotiate attaches tracks and offers when this is the link's first offer or
// something new went on.
func (l *Link) negotiate(tracks []webrtc.TrackLocal) error {
	if l.state == StateClosed {
		return ErrLinkClosed
	}
	added, err := l.attach(tracks)
	if err != nil {
		return err
	}
	if l.state == StateOffering || added {
		return l.offer()
	}
	return nil
}

// offer sends a fresh offer, or marks one as pending when an answer is still
// outstanding. On an established link the side that does not lead asks the
// remote to offer instead, so the two ends never offer at once.
func (l *Link) offer() error {
	switch l.state {
	case StateClosed:
		return ErrLinkClosed
	case StateAwaitingAnswer:
		l.renegotiate = true
		return nil
	}
	if l.negotiated && !l.leads() {
		return l.requestOffer()
	}

	if l.offers == 0 {
		if err := l.addReceivers(); err != nil {
			return err
		}
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	l.state = StateAwaitingAnswer
	l.offers++
	l.armAnswerTimer()

	slog.Debug("sending offer", "peer", l.id, "kind", l.kind, "n", l.offers)
	err = l.m.send(&protocol.Envelope{
		Type:      protocol.TypeOffer,
		To:        l.id,
		MediaKind: l.kind,
		Offer:     toWire(l.pc.LocalDescription()),
	})
	l.markDescribed()
	return err
}

func (l *Link) requestOffer() error {
	slog.Debug("asking peer to renegotiate", "peer", l.id, "kind", l.kind)
	return l.m.send(&protocol.Envelope{
		Type:      protocol.TypeRenegotiate,
		To:        l.id,
		MediaKind: l.kind,
	})
}

// addReceivers makes sure the first offer asks for every media type the link
// carries, even when there is nothing local to send.
func (l *Link) addReceivers() error {
	want := []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo}
	switch l.kind.OrVideo() {
	case protocol.MediaVideo:
		want = append(want, webrtc.RTPCodecTypeAudio)
	case protocol.MediaAudio:
		want = []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio}
	}

	for _, kind := range want {
		if l.hasTransceiver(kind) {
			continue
		}
		if _, err := l.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s receiver: %w", kind, err)
		}
	}
	return nil
}

func (l *Link) hasTransceiver(kind webrtc.RTPCodecType) bool {
	for _, t := range l.pc.GetTransceivers() {
		if t.Kind() == kind {
			return true
		}
	}
	return false
}

// handleOffer answers desc. On glare the side with the smaller client id
// keeps its own offer. The other side drops its unanswered connection,
// answers on a fresh one and then asks for a renegotiation.
func (l *Link) handleOffer(desc webrtc.SessionDescription) error {
	if l.state == StateClosed {
		return ErrLinkClosed
	}

	if l.state == StateAwaitingAnswer {
		if l.leads() {
			slog.Debug("glare: keeping local offer", "peer", l.id)
			return nil
		}
		if l.negotiated {
			return fmt.Errorf("%w: offer while awaiting answer on established link", ErrUnexpectedOffer)
		}
		slog.Debug("glare: replacing local offer", "peer", l.id)
		if err := l.rebuild(); err != nil {
			return err
		}
		l.renegotiate = true
	}

	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	l.remoteSet = true
	l.flushICE()

	if _, err := l.attach(l.m.tracks.Ready(l.kind)); err != nil {
		return err
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	l.state = StateConnected
	l.negotiated = true

	err = l.m.send(&protocol.Envelope{
		Type:      protocol.TypeAnswer,
		To:        l.id,
		MediaKind: l.kind,
		Answer:    toWire(l.pc.LocalDescription()),
	})
	l.markDescribed()
	if err != nil {
		return err
	}

	if l.renegotiate {
		l.renegotiate = false
		return l.offer()
	}
	return nil
}

func (l *Link) handleAnswer(desc webrtc.SessionDescription) error {
	if l.state != StateAwaitingAnswer {
		return fmt.Errorf("%w (state %s)", ErrUnexpectedAnswer, l.state)
	}
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	l.remoteSet = true
	l.flushICE()
	l.stopAnswerTimer()
	l.state = StateConnected
	l.negotiated = true

	if l.renegotiate {
		l.renegotiate = false
		return l.offer()
	}
	return nil
}

// addICE applies c, or buffers it until the remote description is set.
func (l *Link) addICE(c webrtc.ICECandidateInit) error {
	if l.state == StateClosed {
		return ErrLinkClosed
	}
	if !l.remoteSet {
		if len(l.pendingICE) >= MaxPendingICE {
			slog.Warn("ICE buffer full, dropping candidate", "peer", l.id)
			return nil
		}
		l.pendingICE = append(l.pendingICE, c)
		return nil
	}
	if err := l.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (l *Link) flushICE() {
	pending := l.pendingICE
	l.pendingICE = nil
	for _, c := range pending {
		if err := l.pc.AddICECandidate(c); err != nil {
			slog.Warn("buffered ICE candidate rejected", "peer", l.id, "err", err)
		}
	}
}

func (l *Link) armAnswerTimer() {
	l.stopAnswerTimer()
	gen := l.timerGen
	l.answerTimer = time.AfterFunc(l.m.answerTimeout, func() {
		l.mu.Lock()
		expired := l.timerGen == gen && l.state == StateAwaitingAnswer
		l.mu.Unlock()
		if expired {
			slog.Warn("no answer, dropping peer", "peer", l.id, "timeout", l.m.answerTimeout)
			l.m.drop(l, ErrAnswerTimeout)
		}
	})
}

func (l *Link) stopAnswerTimer() {
	l.timerGen++
	if l.answerTimer != nil {
		l.answerTimer.Stop()
		l.answerTimer = nil
	}
}

func (l *Link) onLocalCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()

	l.sigMu.Lock()
	defer l.sigMu.Unlock()
	if !l.described {
		l.outbox = append(l.outbox, init)
		return
	}
	l.sendCandidate(init)
}

func (l *Link) markDescribed() {
	l.sigMu.Lock()
	defer l.sigMu.Unlock()
	if l.described {
		return
	}
	l.described = true
	for _, c := range l.outbox {
		l.sendCandidate(c)
	}
	l.outbox = nil
}

func (l *Link) sendCandidate(c webrtc.ICECandidateInit) {
	err := l.m.send(&protocol.Envelope{
		Type:      protocol.TypeICE,
		To:        l.id,
		MediaKind: l.kind,
		ICE:       candidateToWire(c),
	})
	if err != nil {
		slog.Debug("send ICE candidate", "peer", l.id, "err", err)
	}
}

func (l *Link) onTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	slog.Info("remote track", "peer", l.id, "kind", track.Kind(), "codec", track.Codec().MimeType)
	l.m.observer.PeerTrack(l.remote, l.kind, track)

	go func() {
		for {
			if _, _, err := track.ReadRTP(); err != nil {
				return
			}
		}
	}()
}

func (l *Link) onConnectionState(state webrtc.PeerConnectionState) {
	slog.Debug("connection state", "peer", l.id, "state", state)
	switch state {
	case webrtc.PeerConnectionStateConnected:
		l.m.observer.PeerConnected(l.remote, l.kind)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected, webrtc.PeerConnectionStateClosed:
		l.m.drop(l, fmt.Errorf("connection %s", state))
	}
}

// close marks the link closed and releases the peer connection. It must not
// be called with mu held.
func (l *Link) close() {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return
	}
	l.state = StateClosed
	l.stopAnswerTimer()
	l.pendingICE = nil
	l.mu.Unlock()

	if err := l.current.Load().Close(); err != nil {
		slog.Debug("close peer connection", "peer", l.id, "err", err)
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("rtcp read", "err", err)
			}
			return
		}
	}
}
