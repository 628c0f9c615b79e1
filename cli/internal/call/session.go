package call

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/cli/internal/media"
	"github.com/BioHazard786/warpcall/cli/internal/peer"
	"github.com/BioHazard786/warpcall/internal/protocol"
)

var errPeerLeft = errors.New("left the room")

// Sender delivers envelopes to the relay.
type Sender interface {
	Send(env *protocol.Envelope) error
}

// Options configures a Session.
type Options struct {
	Signaler      Sender
	Notifier      Notifier
	Tracks        *media.Tracks
	Capture       *media.FileCapture
	Factory       peer.Factory
	AnswerTimeout time.Duration
	Name          string
}

// Session is one participant's view of a call. It implements
// signaling.Dispatcher; the handler feeds it the relay's envelopes while the
// UI calls its command methods.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	sig     Sender
	notify  Notifier
	tracks  *media.Tracks
	capture *media.FileCapture
	peers   *peer.Manager
	name    string

	mu      sync.Mutex
	self    protocol.ClientID
	room    protocol.RoomID
	members []protocol.ClientID
	rooms   []protocol.RoomID
	err     error

	welcomed chan struct{}
	entered  chan struct{}
	failed   chan error
	done     chan struct{}

	welcomeOnce sync.Once
	enterOnce   sync.Once
	doneOnce    sync.Once
	wg          sync.WaitGroup
}

// NewSession wires a session. Background negotiation stops when ctx is done
// or Close is called.
func NewSession(ctx context.Context, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if opts.Tracks == nil {
		opts.Tracks = media.NewTracks()
	}

	s := &Session{
		ctx:      ctx,
		cancel:   cancel,
		sig:      opts.Signaler,
		notify:   opts.Notifier,
		tracks:   opts.Tracks,
		capture:  opts.Capture,
		name:     opts.Name,
		welcomed: make(chan struct{}),
		entered:  make(chan struct{}),
		failed:   make(chan error, 1),
		done:     make(chan struct{}),
	}
	s.peers = peer.NewManager(peer.Options{
		Signaler:      opts.Signaler,
		Tracks:        opts.Tracks,
		Observer:      opts.Notifier,
		Factory:       opts.Factory,
		AnswerTimeout: opts.AnswerTimeout,
	})
	s.tracks.OnFill(s.onTrackFilled)
	return s
}

// Peers exposes the session's links.
func (s *Session) Peers() *peer.Manager { return s.peers }

// Self is our client id, empty until the relay's welcome.
func (s *Session) Self() protocol.ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Room is the room we are in, empty outside a room.
func (s *Session) Room() protocol.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Members returns the other participants in join order.
func (s *Session) Members() []protocol.ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.members)
}

// Rooms returns the most recent list of open rooms.
func (s *Session) Rooms() []protocol.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.rooms)
}

// Done is closed when the call is over.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the call ended.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) finish(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// Disconnected ends the session after the relay connection dropped.
func (s *Session) Disconnected() {
	s.finish(ErrDisconnected)
}

// Close tears down every link and waits for background negotiation.
func (s *Session) Close() {
	s.cancel()
	s.peers.Close()
	s.wg.Wait()
	s.finish(nil)
}

// WaitWelcome blocks until the relay has told us our id.
func (s *Session) WaitWelcome(ctx context.Context) error {
	select {
	case <-s.welcomed:
		return nil
	case <-s.done:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start asks the relay for a new room and waits until we are in it.
func (s *Session) Start(ctx context.Context) (protocol.RoomID, error) {
	if err := s.WaitWelcome(ctx); err != nil {
		return "", err
	}
	if err := s.sig.Send(&protocol.Envelope{Type: protocol.TypeStart}); err != nil {
		return "", NewError("start room", err)
	}
	if err := s.waitEntered(ctx); err != nil {
		return "", NewError("start room", err)
	}
	return s.Room(), nil
}

// Join enters an existing room and waits until the relay confirms it.
func (s *Session) Join(ctx context.Context, room protocol.RoomID) error {
	if err := s.WaitWelcome(ctx); err != nil {
		return err
	}
	if err := s.sig.Send(&protocol.Envelope{Type: protocol.TypeJoin, RoomID: room}); err != nil {
		return NewError("join room", err)
	}
	if err := s.waitEntered(ctx); err != nil {
		return NewError("join room", err)
	}
	return nil
}

func (s *Session) waitEntered(ctx context.Context) error {
	select {
	case <-s.entered:
		return nil
	case err := <-s.failed:
		return err
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendChat posts a message to the room.
func (s *Session) SendChat(message string) error {
	if s.Room() == "" {
		return ErrNotInRoom
	}
	return s.sig.Send(&protocol.Envelope{Type: protocol.TypeMessage, Message: message})
}

// SetName changes the display name attached to our chat messages.
func (s *Session) SetName(name string) error {
	return s.sig.Send(&protocol.Envelope{Type: protocol.TypeUsername, Username: name})
}

// End closes the room for everyone.
func (s *Session) End() error {
	room := s.Room()
	if room == "" {
		return ErrNotInRoom
	}
	return s.sig.Send(&protocol.Envelope{Type: protocol.TypeEnd, RoomID: room})
}

// ShareScreen starts the screenshare capture. Every participant is offered
// the new track once it is ready.
func (s *Session) ShareScreen() error {
	if s.capture == nil {
		return NewError("share screen", media.ErrNoFile)
	}
	if err := s.capture.Start(s.ctx, media.SourceScreenshare); err != nil {
		return NewError("share screen", err)
	}
	return nil
}

func (s *Session) onTrackFilled(source media.Source, track webrtc.TrackLocal) {
	if source == media.SourceScreenshare {
		for _, m := range s.Members() {
			s.initiate(m, protocol.MediaScreenshare)
		}
		return
	}
	s.peers.Renegotiate(source, track)
}

func (s *Session) initiate(remote protocol.ClientID, kind protocol.MediaKind) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.peers.Initiate(s.ctx, remote, kind); err != nil && s.ctx.Err() == nil {
			s.notify.Error(NewPeerError("connect", protocol.LogicalPeerID(remote, kind), err))
		}
	}()
}

func (s *Session) enter(room protocol.RoomID, members []protocol.ClientID) {
	s.mu.Lock()
	s.room = room
	s.members = slices.Clone(members)
	s.mu.Unlock()
	s.enterOnce.Do(func() { close(s.entered) })
}

// Welcome implements signaling.Dispatcher.
func (s *Session) Welcome(id protocol.ClientID, rooms []protocol.RoomID) {
	s.mu.Lock()
	s.self = id
	s.rooms = rooms
	s.mu.Unlock()
	s.peers.SetSelf(id)
	slog.Info("connected to relay", "client", id, "rooms", len(rooms))

	if s.name != "" {
		if err := s.SetName(s.name); err != nil {
			s.notify.Error(NewError("set name", err))
		}
	}
	s.welcomeOnce.Do(func() { close(s.welcomed) })
}

// RoomsAvailable implements signaling.Dispatcher.
func (s *Session) RoomsAvailable(rooms []protocol.RoomID) {
	s.mu.Lock()
	s.rooms = rooms
	s.mu.Unlock()
}

// RoomStarted implements signaling.Dispatcher.
func (s *Session) RoomStarted(room protocol.RoomID, _ protocol.ClientID) {
	slog.Info("room started", "room", room)
	s.enter(room, nil)
}

// Joined implements signaling.Dispatcher. Members already in the room offer
// to the newcomer; the newcomer waits for their offers.
func (s *Session) Joined(room protocol.RoomID, newcomer protocol.ClientID, _ int, users []protocol.ClientID) {
	if newcomer == s.Self() {
		slog.Info("joined room", "room", room, "members", len(users))
		s.enter(room, users)
		return
	}

	s.mu.Lock()
	if s.room != room {
		s.mu.Unlock()
		slog.Debug("join for another room", "room", room)
		return
	}
	if !slices.Contains(s.members, newcomer) {
		s.members = append(s.members, newcomer)
	}
	s.mu.Unlock()

	slog.Info("participant joined", "room", room, "peer", newcomer)
	s.initiate(newcomer, protocol.MediaVideo)
	if slot, err := s.tracks.Slot(media.SourceScreenshare); err == nil && slot.Track() != nil {
		s.initiate(newcomer, protocol.MediaScreenshare)
	}
}

// Left implements signaling.Dispatcher.
func (s *Session) Left(id protocol.ClientID) {
	s.mu.Lock()
	s.members = slices.DeleteFunc(s.members, func(m protocol.ClientID) bool { return m == id })
	s.mu.Unlock()
	s.peers.RemoveParticipant(id, errPeerLeft)
}

// Negotiation implements signaling.Dispatcher.
func (s *Session) Negotiation(env *protocol.Envelope) {
	err := s.peers.Handle(env)
	switch {
	case err == nil:
	case errors.Is(err, peer.ErrMissingPeerLink), errors.Is(err, peer.ErrSelfAddressed):
		slog.Debug("dropping envelope", "type", env.Type, "from", env.From, "err", err)
	default:
		slog.Warn("negotiation failed", "type", env.Type, "from", env.From, "err", err)
		s.notify.Error(NewPeerError(string(env.Type), env.From, err))
	}
}

// Chat implements signaling.Dispatcher.
func (s *Session) Chat(sender, message string) {
	s.notify.Chat(sender, message)
}

// Ended implements signaling.Dispatcher.
func (s *Session) Ended(room protocol.RoomID) {
	s.notify.RoomEnded(room)
	s.peers.Close()
	s.finish(ErrRoomEnded)
}

// Failed implements signaling.Dispatcher. Before we are in a room the error
// fails the pending Start or Join; afterwards it is only reported.
func (s *Session) Failed(code string) {
	err := relayError(code)
	select {
	case <-s.entered:
		s.notify.Error(NewError("relay", err))
	default:
		select {
		case s.failed <- err:
		default:
		}
	}
}

// Relayed implements signaling.Dispatcher.
func (s *Session) Relayed(env *protocol.Envelope) {
	slog.Debug("ignoring relayed envelope", "type", env.Type, "from", env.From)
}
