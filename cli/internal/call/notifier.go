package call

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/cli/internal/peer"
	"github.com/BioHazard786/warpcall/internal/protocol"
)

// Notifier is the presentation layer. Methods may be called from any
// goroutine.
type Notifier interface {
	peer.Observer
	Chat(sender, message string)
	RoomEnded(room protocol.RoomID)
	Error(err error)
}

// LogNotifier reports every event through slog. It backs --plain mode.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) log() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}

func (n LogNotifier) PeerConnecting(remote protocol.ClientID, kind protocol.MediaKind) {
	n.log().Info("connecting", "peer", remote, "kind", kind)
}

func (n LogNotifier) PeerConnected(remote protocol.ClientID, kind protocol.MediaKind) {
	n.log().Info("connected", "peer", remote, "kind", kind)
}

func (n LogNotifier) PeerGone(remote protocol.ClientID, kind protocol.MediaKind, reason error) {
	n.log().Info("peer gone", "peer", remote, "kind", kind, "reason", reason)
}

func (n LogNotifier) PeerTrack(remote protocol.ClientID, kind protocol.MediaKind, track *webrtc.TrackRemote) {
	n.log().Info("receiving", "peer", remote, "kind", kind, "track", track.Kind(), "codec", track.Codec().MimeType)
}

func (n LogNotifier) Chat(sender, message string) {
	n.log().Info("chat", "sender", sender, "message", message)
}

func (n LogNotifier) RoomEnded(room protocol.RoomID) {
	n.log().Info("room ended", "room", room)
}

func (n LogNotifier) Error(err error) {
	n.log().Error("call error", "err", err)
}
