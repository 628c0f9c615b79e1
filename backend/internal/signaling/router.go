package signaling

import (
	"errors"
	"log/slog"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

func (h *Hub) handleInbound(in *Inbound) {
	c := in.Client
	if current, ok := h.conns.Lookup(c.id); !ok || current != c || c.closed {
		return
	}

	if in.Err != nil {
		slog.Debug("malformed envelope", "client", c.id, "err", in.Err)
		h.send(c, protocol.NewError(protocol.ErrCodeMalformedMessage))
		return
	}

	h.route(c, in.Envelope)
}

// route applies the decision table to one envelope. Precedence matters: an
// explicit target wins over the type.
func (h *Hub) route(c *Client, env *protocol.Envelope) {
	slog.Debug("envelope", "client", c.id, "type", env.Type, "to", env.To)

	switch {
	case env.To != "":
		h.forward(c, env)
	case env.Type == protocol.TypeStart:
		h.startRoom(c)
	case env.Type == protocol.TypeEnd:
		h.endRoom(c, env)
	case env.Type == protocol.TypeUsername:
		h.conns.SetName(c.id, env.Username)
	case env.Type == protocol.TypeMessage:
		h.chat(c, env)
	case env.Type == protocol.TypeJoin:
		h.joinRoom(c, env)
	case env.Type == protocol.TypeLeave, env.Type == protocol.TypeError:
		// Server-originated kinds are never relayed on a client's behalf.
		slog.Debug("dropping server-only type from client", "client", c.id, "type", env.Type)
	default:
		h.relay(c, env)
	}
}

// forward relays env to its explicit target. Unknown targets are dropped
// without telling the sender.
func (h *Hub) forward(c *Client, env *protocol.Envelope) {
	target, ok := h.conns.Resolve(env.To)
	if !ok {
		slog.Debug("unknown target", "client", c.id, "to", env.To, "type", env.Type)
		return
	}
	env.From = c.id
	h.send(target, env)
}

func (h *Hub) startRoom(c *Client) {
	if roomID, ok := h.rooms.RoomOf(c.id); ok {
		slog.Info("start rejected", "client", c.id, "room", roomID, "err", ErrAlreadyInRoom)
		h.send(c, protocol.NewError(protocol.ErrCodeAlreadyInRoom))
		return
	}

	roomID := h.rooms.Create()
	if err := h.rooms.Join(roomID, c.id); err != nil {
		// Create just inserted the room; Join cannot fail here.
		slog.Error("join new room", "client", c.id, "room", roomID, "err", err)
		return
	}
	h.conns.Assign(c.id)
	slog.Info("room created", "room", roomID, "client", c.id)

	h.send(c, &protocol.Envelope{Type: protocol.TypeStart, RoomID: roomID, ID: c.id})
	h.broadcastRooms()
}

// broadcastRooms sends the current room list to every client not in a room.
func (h *Hub) broadcastRooms() {
	rooms := &protocol.Envelope{Type: protocol.TypeStart, Rooms: h.rooms.IDs()}
	for _, u := range h.conns.Unassigned() {
		h.send(u, rooms)
	}
}

func (h *Hub) endRoom(c *Client, env *protocol.Envelope) {
	roomID, ok := h.rooms.RoomOf(c.id)
	if !ok || (env.RoomID != "" && env.RoomID != roomID) {
		slog.Info("end rejected", "client", c.id, "room", env.RoomID, "err", ErrInvalidRoom)
		h.send(c, protocol.NewError(protocol.ErrCodeInvalidRoom))
		return
	}

	members, err := h.rooms.End(roomID)
	if err != nil {
		h.send(c, protocol.NewError(protocol.ErrCodeInvalidRoom))
		return
	}

	ended := &protocol.Envelope{Type: protocol.TypeEnd, RoomID: roomID}
	for _, m := range members {
		member, ok := h.conns.Lookup(m)
		if !ok {
			continue
		}
		h.send(member, ended)
		h.disconnect(member)
	}
	slog.Info("room ended", "room", roomID, "by", c.id, "members", len(members))
	h.broadcastRooms()
}

func (h *Hub) chat(c *Client, env *protocol.Envelope) {
	roomID, ok := h.rooms.RoomOf(c.id)
	if !ok {
		slog.Debug("message outside a room", "client", c.id)
		return
	}
	members, _ := h.rooms.Members(roomID)

	msg := &protocol.Envelope{
		Type:    protocol.TypeMessage,
		Message: env.Message,
		Sender:  h.conns.Name(c.id),
	}
	for _, m := range members {
		h.sendTo(m, msg)
	}
}

func (h *Hub) joinRoom(c *Client, env *protocol.Envelope) {
	roomID := protocol.NormalizeRoomID(env.RoomID)

	if err := h.rooms.Join(roomID, c.id); err != nil {
		code := protocol.ErrCodeInvalidRoom
		if errors.Is(err, ErrAlreadyInRoom) {
			code = protocol.ErrCodeAlreadyInRoom
		}
		slog.Info("join failed", "client", c.id, "room", roomID, "err", err)
		h.send(c, protocol.NewError(code))
		return
	}
	h.conns.Assign(c.id)

	members, _ := h.rooms.Members(roomID)
	slog.Info("client joined room", "client", c.id, "room", roomID, "members", len(members))

	for _, m := range members {
		users := make([]protocol.ClientID, 0, len(members)-1)
		for _, u := range members {
			if u != m {
				users = append(users, u)
			}
		}
		h.sendTo(m, &protocol.Envelope{
			Type:     protocol.TypeJoin,
			RoomID:   roomID,
			ID:       c.id,
			Position: len(members),
			Users:    users,
		})
	}
}

// relay broadcasts env, tagged with its sender, to the rest of the sender's
// room.
func (h *Hub) relay(c *Client, env *protocol.Envelope) {
	roomID, ok := h.rooms.RoomOf(c.id)
	if !ok {
		slog.Debug("relay outside a room", "client", c.id, "type", env.Type)
		return
	}
	members, _ := h.rooms.Members(roomID)

	env.From = c.id
	for _, m := range members {
		if m != c.id {
			h.sendTo(m, env)
		}
	}
}
