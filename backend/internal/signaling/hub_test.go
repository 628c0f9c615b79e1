package signaling

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

type testClient struct {
	*Client
	hangup bool
}

func newTestClient(h *Hub) *testClient {
	c := &testClient{Client: NewClient(h, nil, protocol.JSON, 64, 0)}
	h.handleRegister(c.Client)
	return c
}

// drain returns everything queued for c so far.
func (c *testClient) drain() []*protocol.Envelope {
	var out []*protocol.Envelope
	for {
		select {
		case env, ok := <-c.send:
			if !ok {
				c.hangup = true
				return out
			}
			out = append(out, env)
		default:
			return out
		}
	}
}

func (c *testClient) ofType(t protocol.Type) []*protocol.Envelope {
	var out []*protocol.Envelope
	for _, env := range c.drain() {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (h *Hub) recv(c *testClient, env *protocol.Envelope) {
	h.handleInbound(&Inbound{Client: c.Client, Envelope: env})
}

func startRoom(t *testing.T, h *Hub, c *testClient) protocol.RoomID {
	t.Helper()
	c.drain()
	h.recv(c, &protocol.Envelope{Type: protocol.TypeStart})
	got := c.ofType(protocol.TypeStart)
	require.Len(t, got, 1)
	require.NotEmpty(t, got[0].RoomID)
	return got[0].RoomID
}

func TestHub_RegisterAnnouncesIdentityAndRooms(t *testing.T) {
	h := NewHub()
	a := newTestClient(h)
	room := startRoom(t, h, a)

	b := newTestClient(h)
	welcome := b.drain()
	require.Len(t, welcome, 1)
	assert.Equal(t, protocol.TypeStart, welcome[0].Type)
	assert.Equal(t, b.id, welcome[0].ID)
	assert.Equal(t, []protocol.RoomID{room}, welcome[0].Rooms)
	assert.Empty(t, welcome[0].RoomID)
}

func TestHub_StartBroadcastsRoomsToUnassigned(t *testing.T) {
	h := NewHub()
	a := newTestClient(h)
	idle := newTestClient(h)
	idle.drain()

	room := startRoom(t, h, a)

	got := idle.drain()
	require.Len(t, got, 1)
	assert.Equal(t, []protocol.RoomID{room}, got[0].Rooms)

	// The creator is a member and no longer unassigned.
	assert.False(t, h.conns.IsUnassigned(a.id))
	members, ok := h.rooms.Members(room)
	require.True(t, ok)
	assert.Equal(t, []protocol.ClientID{a.id}, members)

	h.recv(a, &protocol.Envelope{Type: protocol.TypeStart})
	errs := a.ofType(protocol.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrCodeAlreadyInRoom, errs[0].Error)
	assert.Equal(t, 1, h.rooms.Len())
}

func TestHub_JoinScenario(t *testing.T) {
	h := NewHub()
	a := newTestClient(h)
	b := newTestClient(h)
	outsider := newTestClient(h)
	room := startRoom(t, h, a)
	b.drain()
	outsider.drain()

	h.recv(b, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: room})

	aJoins := a.ofType(protocol.TypeJoin)
	bJoins := b.ofType(protocol.TypeJoin)
	require.Len(t, aJoins, 1)
	require.Len(t, bJoins, 1)

	assert.Equal(t, b.id, aJoins[0].ID)
	assert.Equal(t, []protocol.ClientID{b.id}, aJoins[0].Users)
	assert.Equal(t, b.id, bJoins[0].ID)
	assert.Equal(t, []protocol.ClientID{a.id}, bJoins[0].Users)
	assert.Equal(t, 2, bJoins[0].Position)
	assert.Empty(t, outsider.drain())

	h.recv(a, &protocol.Envelope{Type: protocol.TypeMessage, Message: "hi"})
	for _, c := range []*testClient{a, b} {
		msgs := c.ofType(protocol.TypeMessage)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Message)
		assert.Equal(t, a.id, msgs[0].Sender)
	}
	assert.Empty(t, outsider.drain())
}

func TestHub_ThirdMemberJoinNotifiesEveryoneOnce(t *testing.T) {
	h := NewHub()
	a, b, c := newTestClient(h), newTestClient(h), newTestClient(h)
	room := startRoom(t, h, a)
	h.recv(b, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: room})
	a.drain()
	b.drain()
	c.drain()

	h.recv(c, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: room})

	for _, m := range []*testClient{a, b, c} {
		joins := m.ofType(protocol.TypeJoin)
		require.Len(t, joins, 1)
		assert.Equal(t, c.id, joins[0].ID)
		assert.NotContains(t, joins[0].Users, m.id)
		assert.Len(t, joins[0].Users, 2)
		assert.Equal(t, 3, joins[0].Position)
	}
}

func TestHub_JoinInvalidRoom(t *testing.T) {
	h := NewHub()
	b := newTestClient(h)
	b.drain()

	h.recv(b, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: "ZZZZZZZZ"})

	got := b.drain()
	require.Len(t, got, 1)
	assert.Equal(t, protocol.TypeError, got[0].Type)
	assert.Equal(t, protocol.ErrCodeInvalidRoom, got[0].Error)

	_, inRoom := h.rooms.RoomOf(b.id)
	assert.False(t, inRoom)
	assert.True(t, h.conns.IsUnassigned(b.id))
}

func TestHub_ChatNeedsMembership(t *testing.T) {
	h := NewHub()
	a := newTestClient(h)
	a.drain()

	h.recv(a, &protocol.Envelope{Type: protocol.TypeMessage, Message: "anyone?"})
	assert.Empty(t, a.drain())
}

func TestHub_UsernameChangesChatSender(t *testing.T) {
	h := NewHub()
	a := newTestClient(h)
	startRoom(t, h, a)

	h.recv(a, &protocol.Envelope{Type: protocol.TypeUsername, Username: "ada"})
	assert.Empty(t, a.drain())

	h.recv(a, &protocol.Envelope{Type: protocol.TypeMessage, Message: "hello"})
	msgs := a.ofType(protocol.TypeMessage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ada", msgs[0].Sender)
}

func TestHub_End(t *testing.T) {
	h := NewHub()
	a, b, c := newTestClient(h), newTestClient(h), newTestClient(h)
	room := startRoom(t, h, a)
	h.recv(b, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: room})
	a.drain()
	b.drain()
	c.drain()

	h.recv(b, &protocol.Envelope{Type: protocol.TypeEnd, RoomID: room})

	for _, m := range []*testClient{a, b} {
		ends := m.ofType(protocol.TypeEnd)
		require.Len(t, ends, 1)
		assert.Equal(t, room, ends[0].RoomID)
		assert.True(t, m.hangup, "member must be disconnected")
	}
	_, ok := h.rooms.Members(room)
	assert.False(t, ok)

	// Clients outside any room see the room disappear from the list.
	lists := c.ofType(protocol.TypeStart)
	require.Len(t, lists, 1)
	assert.Empty(t, lists[0].Rooms)
	assert.Empty(t, lists[0].RoomID)

	h.recv(c, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: room})
	errs := c.ofType(protocol.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrCodeInvalidRoom, errs[0].Error)

	// The transport closes afterwards; nothing is left behind.
	h.handleUnregister(a.Client)
	h.handleUnregister(b.Client)
	assert.Equal(t, 1, h.conns.Len())
}

func TestHub_EndRejectsNonMembers(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	room := startRoom(t, h, a)
	b.drain()

	h.recv(b, &protocol.Envelope{Type: protocol.TypeEnd, RoomID: room})
	errs := b.ofType(protocol.TypeError)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ErrCodeInvalidRoom, errs[0].Error)

	_, ok := h.rooms.Members(room)
	assert.True(t, ok)
	assert.Empty(t, a.drain())
}

func TestHub_DisconnectNotifiesRoomAndDissolvesWhenEmpty(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	room := startRoom(t, h, a)
	h.recv(b, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: room})
	a.drain()

	h.handleUnregister(b.Client)

	leaves := a.ofType(protocol.TypeLeave)
	require.Len(t, leaves, 1)
	assert.Equal(t, b.id, leaves[0].ID)
	members, ok := h.rooms.Members(room)
	require.True(t, ok)
	assert.Equal(t, []protocol.ClientID{a.id}, members)

	h.handleUnregister(a.Client)
	assert.Zero(t, h.rooms.Len())
	assert.Zero(t, h.conns.Len())
}

func TestHub_DissolvedRoomIsRemovedFromListings(t *testing.T) {
	h := NewHub()
	a, b, idle := newTestClient(h), newTestClient(h), newTestClient(h)
	first := startRoom(t, h, a)
	second := startRoom(t, h, b)
	idle.drain()

	h.handleUnregister(a.Client)

	lists := idle.ofType(protocol.TypeStart)
	require.Len(t, lists, 1)
	assert.Equal(t, []protocol.RoomID{second}, lists[0].Rooms)
	assert.NotContains(t, lists[0].Rooms, first)

	// A member leaving a room that stays open changes no listing.
	c := newTestClient(h)
	h.recv(c, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: second})
	idle.drain()
	h.handleUnregister(c.Client)
	assert.Empty(t, idle.ofType(protocol.TypeStart))
}

func TestHub_ForwardToExplicitTarget(t *testing.T) {
	h := NewHub()
	a, b := newTestClient(h), newTestClient(h)
	a.drain()
	b.drain()

	offer := &protocol.Envelope{
		Type:      protocol.TypeOffer,
		To:        protocol.LogicalPeerID(b.id, protocol.MediaScreenshare),
		MediaKind: protocol.MediaScreenshare,
		Offer:     &protocol.SessionDescription{Type: "offer", SDP: "v=0"},
	}
	h.recv(a, offer)

	got := b.drain()
	require.Len(t, got, 1)
	assert.Equal(t, a.id, got[0].From)
	assert.Equal(t, offer.To, got[0].To)
	assert.Equal(t, "v=0", got[0].Offer.SDP)

	h.recv(a, &protocol.Envelope{Type: protocol.TypeICE, To: "ghost", ICE: &protocol.ICECandidate{}})
	assert.Empty(t, a.drain())
	assert.Empty(t, b.drain())
}

func TestHub_DefaultRelaysToOtherMembers(t *testing.T) {
	h := NewHub()
	a, b, c := newTestClient(h), newTestClient(h), newTestClient(h)
	room := startRoom(t, h, a)
	h.recv(b, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: room})
	a.drain()
	b.drain()
	c.drain()

	h.recv(a, &protocol.Envelope{Type: "whiteboard", Message: "stroke"})

	assert.Empty(t, a.drain())
	assert.Empty(t, c.drain())
	got := b.drain()
	require.Len(t, got, 1)
	assert.Equal(t, a.id, got[0].From)

	h.recv(a, &protocol.Envelope{Type: protocol.TypeLeave, ID: b.id})
	assert.Empty(t, b.drain())
}

func TestHub_MalformedIsReportedAndConnectionStays(t *testing.T) {
	h := NewHub()
	a := newTestClient(h)
	a.drain()

	_, err := protocol.Decode(protocol.JSON, []byte("{nope"))
	h.handleInbound(&Inbound{Client: a.Client, Err: err})

	got := a.drain()
	require.Len(t, got, 1)
	assert.Equal(t, protocol.ErrCodeMalformedMessage, got[0].Error)
	assert.False(t, a.hangup)
}

func TestHub_SlowClientIsDisconnected(t *testing.T) {
	h := NewHub()
	slow := &testClient{Client: NewClient(h, nil, protocol.JSON, 1, 0)}
	h.handleRegister(slow.Client)

	h.send(slow.Client, &protocol.Envelope{Type: protocol.TypeMessage})
	assert.True(t, slow.closed)

	// Sends after the disconnect are ignored rather than panicking.
	h.send(slow.Client, &protocol.Envelope{Type: protocol.TypeMessage})
}

func TestHub_MembershipStaysConsistent(t *testing.T) {
	h := NewHub()
	rng := rand.New(rand.NewPCG(1, 2))

	var clients []*testClient
	for range 12 {
		clients = append(clients, newTestClient(h))
	}

	for range 500 {
		c := clients[rng.IntN(len(clients))]
		if c.closed {
			// Ended rooms hang up their members; reconnect them.
			h.handleUnregister(c.Client)
			*c = *newTestClient(h)
			continue
		}
		switch rng.IntN(5) {
		case 0:
			h.recv(c, &protocol.Envelope{Type: protocol.TypeStart})
		case 1, 2:
			ids := h.rooms.IDs()
			if len(ids) > 0 {
				h.recv(c, &protocol.Envelope{Type: protocol.TypeJoin, RoomID: ids[rng.IntN(len(ids))]})
			}
		case 3:
			h.recv(c, &protocol.Envelope{Type: protocol.TypeEnd})
		case 4:
			h.handleUnregister(c.Client)
			*c = *newTestClient(h)
		}
		for _, cl := range clients {
			cl.drain()
		}

		for _, id := range h.rooms.IDs() {
			members, ok := h.rooms.Members(id)
			require.True(t, ok)
			seen := make(map[protocol.ClientID]bool)
			for _, m := range members {
				require.False(t, seen[m], "duplicate member %s", m)
				seen[m] = true
				back, ok := h.rooms.RoomOf(m)
				require.True(t, ok)
				require.Equal(t, id, back)
				require.False(t, h.conns.IsUnassigned(m))
			}
		}
		for m, id := range h.rooms.roomOf {
			members, ok := h.rooms.Members(id)
			require.True(t, ok)
			require.Contains(t, members, m)
		}
	}
}

func TestHub_RunServesStatsAndStops(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := NewClient(h, nil, protocol.JSON, 8, 0)
	require.True(t, h.RegisterClient(c))

	stats, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Clients: 1, Unassigned: 1}, stats)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	_, err = h.Stats(context.Background())
	assert.True(t, errors.Is(err, ErrHubStopped))
	assert.False(t, h.RegisterClient(NewClient(h, nil, protocol.JSON, 8, 0)))
}
