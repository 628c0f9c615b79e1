package media

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

var (
	ErrSlotFilled    = errors.New("track slot already settled")
	ErrUnknownSource = errors.New("unknown media source")
)

// Source names one local capture.
type Source string

const (
	SourceCamera      Source = "camera"
	SourceScreenshare Source = "screenshare"
	SourceAudio       Source = "audio"
)

// Sources lists every capture in a fixed order.
var Sources = []Source{SourceCamera, SourceScreenshare, SourceAudio}

// Slot holds at most one local track. Its readiness gate is closed exactly
// once, either by Fill or by Abandon when the device is absent.
type Slot struct {
	source Source

	mu    sync.Mutex
	track webrtc.TrackLocal
	ready chan struct{}
	done  bool
}

func newSlot(source Source) *Slot {
	return &Slot{source: source, ready: make(chan struct{})}
}

// Source reports which capture this slot holds.
func (s *Slot) Source() Source { return s.source }

// Fill stores track and releases every waiter.
func (s *Slot) Fill(track webrtc.TrackLocal) error {
	if track == nil {
		return s.Abandon()
	}
	return s.settle(track)
}

// Abandon releases every waiter without a track.
func (s *Slot) Abandon() error {
	return s.settle(nil)
}

func (s *Slot) settle(track webrtc.TrackLocal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return ErrSlotFilled
	}
	s.done = true
	s.track = track
	close(s.ready)
	return nil
}

// Wait blocks until the slot is settled or ctx is done. A nil track with a
// nil error means the slot was abandoned.
func (s *Slot) Wait(ctx context.Context) (webrtc.TrackLocal, error) {
	select {
	case <-s.ready:
		return s.Track(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Track returns the current track without waiting.
func (s *Slot) Track() webrtc.TrackLocal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// Settled reports whether Fill or Abandon has run.
func (s *Slot) Settled() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}
