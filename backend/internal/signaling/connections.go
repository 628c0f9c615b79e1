package signaling

import (
	"github.com/google/uuid"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// Connections is the Connection Registry: live clients by id, their display
// names and the set of clients that are in no room. Owned by the hub
// goroutine.
type Connections struct {
	clients    map[protocol.ClientID]*Client
	names      map[protocol.ClientID]string
	unassigned map[protocol.ClientID]struct{}

	newID func() protocol.ClientID
}

// NewConnections returns an empty registry.
func NewConnections() *Connections {
	return &Connections{
		clients:    make(map[protocol.ClientID]*Client),
		names:      make(map[protocol.ClientID]string),
		unassigned: make(map[protocol.ClientID]struct{}),
		newID:      func() protocol.ClientID { return uuid.NewString() },
	}
}

// Register assigns c a fresh id, unique among live clients, and marks it
// unassigned.
func (cs *Connections) Register(c *Client) protocol.ClientID {
	id := cs.newID()
	for cs.has(id) {
		id = cs.newID()
	}
	c.id = id
	cs.clients[id] = c
	cs.names[id] = id
	cs.unassigned[id] = struct{}{}
	return id
}

func (cs *Connections) has(id protocol.ClientID) bool {
	_, ok := cs.clients[id]
	return ok
}

// Lookup returns the client registered under id.
func (cs *Connections) Lookup(id protocol.ClientID) (*Client, bool) {
	c, ok := cs.clients[id]
	return c, ok
}

// Resolve looks up an addressed target, which may be a screenshare logical
// id, and returns the underlying connection.
func (cs *Connections) Resolve(to string) (*Client, bool) {
	if c, ok := cs.clients[to]; ok {
		return c, true
	}
	return cs.Lookup(protocol.BaseClientID(to))
}

// Unregister removes id from every index.
func (cs *Connections) Unregister(id protocol.ClientID) {
	delete(cs.clients, id)
	delete(cs.names, id)
	delete(cs.unassigned, id)
}

// Assign records that id joined a room.
func (cs *Connections) Assign(id protocol.ClientID) {
	delete(cs.unassigned, id)
}

// Unassign records that id is in no room.
func (cs *Connections) Unassign(id protocol.ClientID) {
	if cs.has(id) {
		cs.unassigned[id] = struct{}{}
	}
}

// IsUnassigned reports whether id is live and in no room.
func (cs *Connections) IsUnassigned(id protocol.ClientID) bool {
	_, ok := cs.unassigned[id]
	return ok
}

// Unassigned returns the live clients that are in no room.
func (cs *Connections) Unassigned() []*Client {
	out := make([]*Client, 0, len(cs.unassigned))
	for id := range cs.unassigned {
		if c, ok := cs.clients[id]; ok && !c.closed {
			out = append(out, c)
		}
	}
	return out
}

// SetName binds a display name to id.
func (cs *Connections) SetName(id protocol.ClientID, name string) {
	if cs.has(id) {
		cs.names[id] = name
	}
}

// Name returns the display name bound to id, which defaults to the id.
func (cs *Connections) Name(id protocol.ClientID) string {
	if name, ok := cs.names[id]; ok && name != "" {
		return name
	}
	return id
}

// Len returns the number of live clients.
func (cs *Connections) Len() int {
	return len(cs.clients)
}

// UnassignedLen returns the number of live clients in no room.
func (cs *Connections) UnassignedLen() int {
	return len(cs.unassigned)
}
