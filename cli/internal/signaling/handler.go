package signaling

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// Dispatcher receives the relay's envelopes once the Handler has worked out
// what each one means. Methods are called one at a time, in arrival order.
type Dispatcher interface {
	// Welcome is the first envelope on a connection: our id and the open rooms.
	Welcome(id protocol.ClientID, rooms []protocol.RoomID)
	// RoomsAvailable is sent to clients outside a room whenever one opens.
	RoomsAvailable(rooms []protocol.RoomID)
	// RoomStarted confirms a room we asked for.
	RoomStarted(room protocol.RoomID, id protocol.ClientID)
	// Joined announces a newcomer to every member, the newcomer included.
	Joined(room protocol.RoomID, newcomer protocol.ClientID, position int, users []protocol.ClientID)
	Left(id protocol.ClientID)
	Negotiation(env *protocol.Envelope)
	Chat(sender, message string)
	Ended(room protocol.RoomID)
	Failed(code string)
	// Relayed carries any envelope type the client does not know.
	Relayed(env *protocol.Envelope)
}

// Handler routes incoming envelopes to a Dispatcher.
type Handler struct {
	client *Client
}

// NewHandler creates a new envelope handler.
func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

// Run dispatches envelopes until the connection drops, returning ErrClosed,
// or ctx is done.
func (h *Handler) Run(ctx context.Context, d Dispatcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-h.client.Incoming():
			if !ok {
				return ErrClosed
			}
			Dispatch(d, env)
		}
	}
}

// Dispatch hands one envelope to d.
func Dispatch(d Dispatcher, env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeStart:
		switch {
		case env.RoomID != "":
			d.RoomStarted(env.RoomID, env.ID)
		case env.ID != "":
			d.Welcome(env.ID, env.Rooms)
		default:
			d.RoomsAvailable(env.Rooms)
		}

	case protocol.TypeJoin:
		d.Joined(env.RoomID, env.ID, env.Position, env.Users)

	case protocol.TypeLeave:
		d.Left(env.ID)

	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICE, protocol.TypeRenegotiate:
		d.Negotiation(env)

	case protocol.TypeMessage:
		d.Chat(env.Sender, env.Message)

	case protocol.TypeEnd:
		d.Ended(env.RoomID)

	case protocol.TypeError:
		d.Failed(env.Error)

	default:
		slog.Debug("unhandled envelope", "type", env.Type, "from", env.From)
		d.Relayed(env)
	}
}
