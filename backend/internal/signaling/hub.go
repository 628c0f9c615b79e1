package signaling

import (
	"context"
	"log/slog"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// Inbound is one frame read from a client, already decoded. Err is set when
// the frame could not be decoded.
type Inbound struct {
	Client   *Client
	Envelope *protocol.Envelope
	Err      error
}

// Stats is a point-in-time view of the registries.
type Stats struct {
	Rooms      int `json:"rooms"`
	Clients    int `json:"clients"`
	Unassigned int `json:"unassigned"`
}

// Hub is the central brain of the signaling server.
// It owns the Connection Registry and the Room Registry; every mutation of
// either happens on the goroutine running Run, one event at a time, so a
// handler's fan-out is fully queued before the next event is looked at.
type Hub struct {
	conns *Connections
	rooms *Rooms

	register   chan *Client
	unregister chan *Client
	inbound    chan *Inbound
	stats      chan chan Stats

	done chan struct{}
}

// NewHub creates a new Hub instance.
func NewHub() *Hub {
	return &Hub{
		conns:      NewConnections(),
		rooms:      NewRooms(),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *Inbound),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main processing loop and blocks until ctx is done.
// On return every client's send queue is closed so their write pumps hang up.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case in := <-h.inbound:
			h.handleInbound(in)

		case reply := <-h.stats:
			reply <- Stats{
				Rooms:      h.rooms.Len(),
				Clients:    h.conns.Len(),
				Unassigned: h.conns.UnassignedLen(),
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, c := range h.conns.clients {
		h.disconnect(c)
	}
	close(h.done)
	slog.Info("hub stopped", "clients", h.conns.Len(), "rooms", h.rooms.Len())
}

// RegisterClient hands c to the hub. It returns false if the hub has stopped.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// UnregisterClient tells the hub c's transport closed.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver queues an inbound frame for the hub. It returns false if the hub
// has stopped.
func (h *Hub) Deliver(in *Inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Stats asks the hub goroutine for registry counts.
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return Stats{}, ErrHubStopped
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	return <-reply, nil
}

func (h *Hub) handleRegister(c *Client) {
	id := h.conns.Register(c)
	slog.Info("client registered", "client", id, "addr", c.addr, "codec", c.codec.Name())

	// Announce the open rooms and tell the client who it is.
	h.send(c, &protocol.Envelope{
		Type:  protocol.TypeStart,
		ID:    id,
		Rooms: h.rooms.IDs(),
	})
}

func (h *Hub) handleUnregister(c *Client) {
	if current, ok := h.conns.Lookup(c.id); !ok || current != c {
		h.disconnect(c)
		return
	}

	destroyed := false
	if roomID, empty, ok := h.rooms.Leave(c.id); ok {
		destroyed = empty
		if destroyed {
			slog.Info("room deleted", "room", roomID, "reason", "empty")
		} else {
			slog.Info("client left room", "client", c.id, "room", roomID)
			members, _ := h.rooms.Members(roomID)
			for _, m := range members {
				h.sendTo(m, &protocol.Envelope{Type: protocol.TypeLeave, ID: c.id})
			}
		}
	}

	h.conns.Unregister(c.id)
	h.disconnect(c)
	slog.Info("client unregistered", "client", c.id, "addr", c.addr)

	if destroyed {
		h.broadcastRooms()
	}
}

// send queues env for c. A client whose queue is full is disconnected
// rather than allowed to stall the hub.
func (h *Hub) send(c *Client, env *protocol.Envelope) {
	if c == nil || c.closed {
		return
	}
	select {
	case c.send <- env:
	default:
		slog.Warn("send queue full, disconnecting", "client", c.id, "type", env.Type)
		h.disconnect(c)
	}
}

func (h *Hub) sendTo(id protocol.ClientID, env *protocol.Envelope) {
	if c, ok := h.conns.Lookup(id); ok {
		h.send(c, env)
	}
}

// disconnect closes c's send queue; its write pump then closes the socket
// and the read pump reports the close back through UnregisterClient.
func (h *Hub) disconnect(c *Client) {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
