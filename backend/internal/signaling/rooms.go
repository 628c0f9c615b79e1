package signaling

import (
	"slices"
	"time"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// Room is a named grouping of clients sharing one broadcast domain.
type Room struct {
	ID      protocol.RoomID
	Created time.Time

	// members is kept in join order so broadcasts and the users list are
	// deterministic.
	members []protocol.ClientID
}

// Rooms is the Room Registry. It is owned by the hub goroutine and is not
// safe for concurrent use.
type Rooms struct {
	rooms  map[protocol.RoomID]*Room
	roomOf map[protocol.ClientID]protocol.RoomID

	newID func() protocol.RoomID
	now   func() time.Time
}

// NewRooms returns an empty registry.
func NewRooms() *Rooms {
	return &Rooms{
		rooms:  make(map[protocol.RoomID]*Room),
		roomOf: make(map[protocol.ClientID]protocol.RoomID),
		newID:  newRoomID,
		now:    time.Now,
	}
}

// Create allocates an unused room id and inserts an empty room.
//
// Retries are unbounded: 36^8 ids dwarf any plausible number of live rooms.
func (r *Rooms) Create() protocol.RoomID {
	id := r.newID()
	for r.exists(id) {
		id = r.newID()
	}
	r.rooms[id] = &Room{ID: id, Created: r.now()}
	return id
}

func (r *Rooms) exists(id protocol.RoomID) bool {
	_, ok := r.rooms[id]
	return ok
}

// Join adds client to room. A client already in a room, this one included,
// gets ErrAlreadyInRoom.
func (r *Rooms) Join(roomID protocol.RoomID, client protocol.ClientID) error {
	room, ok := r.rooms[roomID]
	if !ok {
		return ErrInvalidRoom
	}
	if _, ok := r.roomOf[client]; ok {
		return ErrAlreadyInRoom
	}
	room.members = append(room.members, client)
	r.roomOf[client] = roomID
	return nil
}

// Leave removes client from its room. It returns the room the client was in
// and whether that room was destroyed because it became empty.
func (r *Rooms) Leave(client protocol.ClientID) (roomID protocol.RoomID, destroyed bool, ok bool) {
	roomID, ok = r.roomOf[client]
	if !ok {
		return "", false, false
	}
	delete(r.roomOf, client)

	room := r.rooms[roomID]
	room.members = slices.DeleteFunc(room.members, func(m protocol.ClientID) bool { return m == client })
	if len(room.members) == 0 {
		delete(r.rooms, roomID)
		return roomID, true, true
	}
	return roomID, false, true
}

// End removes the room and returns its former members in join order.
func (r *Rooms) End(roomID protocol.RoomID) ([]protocol.ClientID, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, ErrInvalidRoom
	}
	for _, m := range room.members {
		delete(r.roomOf, m)
	}
	delete(r.rooms, roomID)
	return room.members, nil
}

// Members returns a copy of the room's member list. ok is false when the
// room does not exist, which callers must tell apart from an empty room.
func (r *Rooms) Members(roomID protocol.RoomID) (members []protocol.ClientID, ok bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return slices.Clone(room.members), true
}

// RoomOf returns the room client is a member of.
func (r *Rooms) RoomOf(client protocol.ClientID) (protocol.RoomID, bool) {
	id, ok := r.roomOf[client]
	return id, ok
}

// Get returns the room with the given id.
func (r *Rooms) Get(roomID protocol.RoomID) (*Room, bool) {
	room, ok := r.rooms[roomID]
	return room, ok
}

// IDs returns the ids of all live rooms, sorted.
func (r *Rooms) IDs() []protocol.RoomID {
	ids := make([]protocol.RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of live rooms.
func (r *Rooms) Len() int {
	return len(r.rooms)
}
