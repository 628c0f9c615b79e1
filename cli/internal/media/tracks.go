package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// FillFunc is called after a slot receives a track.
type FillFunc func(source Source, track webrtc.TrackLocal)

// Tracks is the set of local capture slots shared by every peer link.
type Tracks struct {
	slots map[Source]*Slot

	mu   sync.Mutex
	subs []FillFunc
}

// NewTracks returns a store with every slot pending.
func NewTracks() *Tracks {
	t := &Tracks{slots: make(map[Source]*Slot, len(Sources))}
	for _, s := range Sources {
		t.slots[s] = newSlot(s)
	}
	return t
}

// Slot returns the slot for source.
func (t *Tracks) Slot(source Source) (*Slot, error) {
	s, ok := t.slots[source]
	if !ok {
		return nil, ErrUnknownSource
	}
	return s, nil
}

// OnFill registers fn to run, in registration order, after every successful Fill.
func (t *Tracks) OnFill(fn FillFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

// Fill settles source's slot with track and notifies subscribers.
func (t *Tracks) Fill(source Source, track webrtc.TrackLocal) error {
	s, err := t.Slot(source)
	if err != nil {
		return err
	}
	if err := s.Fill(track); err != nil {
		return err
	}
	if track == nil {
		return nil
	}

	t.mu.Lock()
	subs := append([]FillFunc(nil), t.subs...)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(source, track)
	}
	return nil
}

// Abandon settles source's slot with no track.
func (t *Tracks) Abandon(source Source) error {
	s, err := t.Slot(source)
	if err != nil {
		return err
	}
	return s.Abandon()
}

// SourcesFor maps a link's media kind to the captures it carries.
func SourcesFor(kind protocol.MediaKind) []Source {
	switch kind.OrVideo() {
	case protocol.MediaScreenshare:
		return []Source{SourceScreenshare}
	case protocol.MediaAudio:
		return []Source{SourceAudio}
	default:
		return []Source{SourceCamera, SourceAudio}
	}
}

// KindsFor is the inverse of SourcesFor.
func KindsFor(source Source) []protocol.MediaKind {
	switch source {
	case SourceScreenshare:
		return []protocol.MediaKind{protocol.MediaScreenshare}
	case SourceAudio:
		return []protocol.MediaKind{protocol.MediaVideo, protocol.MediaAudio}
	default:
		return []protocol.MediaKind{protocol.MediaVideo}
	}
}

// Wait blocks until every slot kind needs is settled and returns the tracks
// that were filled.
func (t *Tracks) Wait(ctx context.Context, kind protocol.MediaKind) ([]webrtc.TrackLocal, error) {
	var out []webrtc.TrackLocal
	for _, src := range SourcesFor(kind) {
		track, err := t.slots[src].Wait(ctx)
		if err != nil {
			return nil, err
		}
		if track != nil {
			out = append(out, track)
		}
	}
	return out, nil
}

// Ready returns the tracks currently available for kind without waiting.
func (t *Tracks) Ready(kind protocol.MediaKind) []webrtc.TrackLocal {
	var out []webrtc.TrackLocal
	for _, src := range SourcesFor(kind) {
		if track := t.slots[src].Track(); track != nil {
			out = append(out, track)
		}
	}
	return out
}
