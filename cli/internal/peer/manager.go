package peer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/cli/internal/media"
	"github.com/BioHazard786/warpcall/internal/protocol"
)

// Signaler delivers envelopes to the relay.
type Signaler interface {
	Send(env *protocol.Envelope) error
}

// Observer is told about link lifecycle events. Calls may arrive from any
// goroutine.
type Observer interface {
	PeerConnecting(remote protocol.ClientID, kind protocol.MediaKind)
	PeerConnected(remote protocol.ClientID, kind protocol.MediaKind)
	PeerGone(remote protocol.ClientID, kind protocol.MediaKind, reason error)
	PeerTrack(remote protocol.ClientID, kind protocol.MediaKind, track *webrtc.TrackRemote)
}

// Options configures a Manager.
type Options struct {
	Signaler      Signaler
	Tracks        *media.Tracks
	Observer      Observer
	Factory       Factory
	AnswerTimeout time.Duration
}

// Manager owns every Link of the local participant, keyed by logical peer id.
type Manager struct {
	signaler      Signaler
	tracks        *media.Tracks
	observer      Observer
	factory       Factory
	answerTimeout time.Duration

	mu    sync.Mutex
	self  protocol.ClientID
	links map[string]*Link
}

// NewManager returns an empty link set.
func NewManager(opts Options) *Manager {
	if opts.AnswerTimeout <= 0 {
		opts.AnswerTimeout = 30 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Factory == nil {
		opts.Factory = func() (*webrtc.PeerConnection, error) {
			return webrtc.NewPeerConnection(webrtc.Configuration{})
		}
	}
	if opts.Tracks == nil {
		opts.Tracks = media.NewTracks()
	}
	return &Manager{
		signaler:      opts.Signaler,
		tracks:        opts.Tracks,
		observer:      opts.Observer,
		factory:       opts.Factory,
		answerTimeout: opts.AnswerTimeout,
		links:         make(map[string]*Link),
	}
}

// SetSelf records the local client id handed out by the relay.
func (m *Manager) SetSelf(id protocol.ClientID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = id
}

// Self returns the local client id.
func (m *Manager) Self() protocol.ClientID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

func (m *Manager) send(env *protocol.Envelope) error {
	return m.signaler.Send(env)
}

// Get returns the link for a logical peer id.
func (m *Manager) Get(id string) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	return l, ok
}

// Links returns a snapshot sorted by id.
func (m *Manager) Links() []*Link {
	m.mu.Lock()
	out := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// linkFor returns the link to remote for kind, creating it in state when
// missing.
func (m *Manager) linkFor(remote protocol.ClientID, kind protocol.MediaKind, state State) (*Link, bool, error) {
	id := protocol.LogicalPeerID(remote, kind)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.self == "" {
		return nil, false, ErrNoIdentity
	}
	if remote == m.self {
		return nil, false, ErrSelfAddressed
	}
	if l, ok := m.links[id]; ok {
		return l, false, nil
	}

	pc, err := m.factory()
	if err != nil {
		return nil, false, fmt.Errorf("create peer connection: %w", err)
	}
	l := newLink(m, remote, kind, pc, state)
	m.links[id] = l
	return l, true, nil
}

// Initiate opens (or renegotiates) the link to remote for kind. It waits for
// the local captures that kind carries, attaches them and sends an offer.
func (m *Manager) Initiate(ctx context.Context, remote protocol.ClientID, kind protocol.MediaKind) error {
	kind = kind.OrVideo()
	l, created, err := m.linkFor(remote, kind, StateOffering)
	if err != nil {
		return err
	}
	if created {
		slog.Info("connecting to peer", "peer", l.id, "kind", kind)
		m.observer.PeerConnecting(remote, kind)
	}

	tracks, err := m.tracks.Wait(ctx, kind)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.negotiate(tracks); err != nil {
		return fmt.Errorf("negotiate with %s: %w", l.id, err)
	}
	return nil
}

// Handle dispatches a negotiation envelope received from the relay.
func (m *Manager) Handle(env *protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeOffer:
		return m.HandleOffer(env)
	case protocol.TypeAnswer:
		return m.HandleAnswer(env)
	case protocol.TypeICE:
		return m.HandleICE(env)
	case protocol.TypeRenegotiate:
		return m.HandleRenegotiate(env)
	}
	return fmt.Errorf("%w: not a negotiation envelope: %s", protocol.ErrMalformed, env.Type)
}

// HandleOffer answers an inbound offer, creating the link if needed.
func (m *Manager) HandleOffer(env *protocol.Envelope) error {
	if err := m.checkSender(env); err != nil {
		return err
	}
	desc, err := fromWire(env.Offer, webrtc.SDPTypeOffer)
	if err != nil {
		return err
	}

	kind := env.MediaKind.OrVideo()
	l, created, err := m.linkFor(env.From, kind, StateIdle)
	if err != nil {
		return err
	}
	if created {
		slog.Info("peer offered", "peer", l.id, "kind", kind)
		m.observer.PeerConnecting(env.From, kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.handleOffer(desc); err != nil {
		return fmt.Errorf("answer %s: %w", l.id, err)
	}
	return nil
}

// HandleAnswer completes an outstanding offer.
func (m *Manager) HandleAnswer(env *protocol.Envelope) error {
	if err := m.checkSender(env); err != nil {
		return err
	}
	desc, err := fromWire(env.Answer, webrtc.SDPTypeAnswer)
	if err != nil {
		return err
	}

	l, err := m.existing(env)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.handleAnswer(desc); err != nil {
		return fmt.Errorf("answer from %s: %w", l.id, err)
	}
	return nil
}

// HandleICE applies or buffers a remote candidate.
func (m *Manager) HandleICE(env *protocol.Envelope) error {
	if err := m.checkSender(env); err != nil {
		return err
	}
	if env.ICE == nil {
		return fmt.Errorf("%w: ice without candidate", protocol.ErrMalformed)
	}

	l, err := m.existing(env)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addICE(candidateFromWire(env.ICE))
}

// HandleRenegotiate sends a fresh offer on an established link when the
// remote asks for one. Requests reaching the side that does not lead are
// dropped.
func (m *Manager) HandleRenegotiate(env *protocol.Envelope) error {
	if err := m.checkSender(env); err != nil {
		return err
	}
	l, err := m.existing(env)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.leads() {
		slog.Debug("ignoring renegotiate request", "peer", l.id)
		return nil
	}
	if err := l.offer(); err != nil {
		return fmt.Errorf("renegotiate %s: %w", l.id, err)
	}
	return nil
}

func (m *Manager) checkSender(env *protocol.Envelope) error {
	self := m.Self()
	if self == "" {
		return ErrNoIdentity
	}
	if env.From == "" || protocol.BaseClientID(env.From) == self {
		return ErrSelfAddressed
	}
	return nil
}

func (m *Manager) existing(env *protocol.Envelope) (*Link, error) {
	id := protocol.LogicalPeerID(env.From, env.MediaKind.OrVideo())
	l, ok := m.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingPeerLink, id)
	}
	return l, nil
}

// Renegotiate attaches a newly captured track to every existing link that
// carries it and offers where something changed.
func (m *Manager) Renegotiate(source media.Source, track webrtc.TrackLocal) {
	kinds := media.KindsFor(source)
	for _, l := range m.Links() {
		carries := false
		for _, k := range kinds {
			if l.kind == k {
				carries = true
			}
		}
		if !carries {
			continue
		}

		l.mu.Lock()
		err := l.negotiate([]webrtc.TrackLocal{track})
		l.mu.Unlock()
		if err != nil {
			slog.Warn("renegotiate", "peer", l.id, "source", source, "err", err)
		}
	}
}

// Remove closes and forgets the link with logical id.
func (m *Manager) Remove(id string, reason error) {
	if l, ok := m.Get(id); ok {
		m.drop(l, reason)
	}
}

// RemoveParticipant closes every link to remote.
func (m *Manager) RemoveParticipant(remote protocol.ClientID, reason error) {
	for _, l := range m.Links() {
		if l.remote == remote {
			m.drop(l, reason)
		}
	}
}

// drop forgets l, closes it and reports it gone once.
func (m *Manager) drop(l *Link, reason error) {
	m.mu.Lock()
	if cur, ok := m.links[l.id]; ok && cur == l {
		delete(m.links, l.id)
	}
	m.mu.Unlock()

	// Report before closing: closing fires a state change that lands here again.
	l.goneOnce.Do(func() {
		slog.Info("peer gone", "peer", l.id, "reason", reason)
		m.observer.PeerGone(l.remote, l.kind, reason)
	})
	l.close()
}

// Close tears down every link.
func (m *Manager) Close() {
	for _, l := range m.Links() {
		m.drop(l, ErrLinkClosed)
	}
}

type nopObserver struct{}

func (nopObserver) PeerConnecting(protocol.ClientID, protocol.MediaKind)                     {}
func (nopObserver) PeerConnected(protocol.ClientID, protocol.MediaKind)                      {}
func (nopObserver) PeerGone(protocol.ClientID, protocol.MediaKind, error)                    {}
func (nopObserver) PeerTrack(protocol.ClientID, protocol.MediaKind, *webrtc.TrackRemote) {}
