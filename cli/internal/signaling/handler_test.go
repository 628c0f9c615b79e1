package signaling

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

type recorder struct {
	calls []string
}

func (r *recorder) add(format string, args ...any) { r.calls = append(r.calls, fmt.Sprintf(format, args...)) }

func (r *recorder) Welcome(id protocol.ClientID, rooms []protocol.RoomID) {
	r.add("welcome %s %v", id, rooms)
}
func (r *recorder) RoomsAvailable(rooms []protocol.RoomID) { r.add("rooms %v", rooms) }
func (r *recorder) RoomStarted(room protocol.RoomID, id protocol.ClientID) {
	r.add("started %s %s", room, id)
}
func (r *recorder) Joined(room protocol.RoomID, id protocol.ClientID, pos int, users []protocol.ClientID) {
	r.add("joined %s %s %d %v", room, id, pos, users)
}
func (r *recorder) Left(id protocol.ClientID)            { r.add("left %s", id) }
func (r *recorder) Negotiation(env *protocol.Envelope)   { r.add("negotiation %s", env.Type) }
func (r *recorder) Chat(sender, message string)          { r.add("chat %s %s", sender, message) }
func (r *recorder) Ended(room protocol.RoomID)           { r.add("ended %s", room) }
func (r *recorder) Failed(code string)                   { r.add("failed %s", code) }
func (r *recorder) Relayed(env *protocol.Envelope)       { r.add("relayed %s", env.Type) }

func TestDispatch(t *testing.T) {
	r := &recorder{}
	for _, env := range []*protocol.Envelope{
		{Type: protocol.TypeStart, ID: "me", Rooms: []protocol.RoomID{"ROOM0001"}},
		{Type: protocol.TypeStart, Rooms: []protocol.RoomID{"ROOM0001", "ROOM0002"}},
		{Type: protocol.TypeStart, RoomID: "ROOM0003", ID: "me"},
		{Type: protocol.TypeJoin, RoomID: "ROOM0003", ID: "you", Position: 2, Users: []protocol.ClientID{"me"}},
		{Type: protocol.TypeOffer},
		{Type: protocol.TypeICE},
		{Type: protocol.TypeRenegotiate},
		{Type: protocol.TypeMessage, Sender: "ada", Message: "hi"},
		{Type: protocol.TypeLeave, ID: "you"},
		{Type: protocol.TypeError, Error: protocol.ErrCodeInvalidRoom},
		{Type: protocol.TypeEnd, RoomID: "ROOM0003"},
		{Type: "whiteboard"},
	} {
		Dispatch(r, env)
	}

	assert.Equal(t, []string{
		"welcome me [ROOM0001]",
		"rooms [ROOM0001 ROOM0002]",
		"started ROOM0003 me",
		"joined ROOM0003 you 2 [me]",
		"negotiation offer",
		"negotiation ice",
		"negotiation renegotiate",
		"chat ada hi",
		"left you",
		"failed INVALID_ROOM",
		"ended ROOM0003",
		"relayed whiteboard",
	}, r.calls)
}

// echoServer sends a welcome and then echoes every frame back.
func echoServer(t *testing.T, codec protocol.Codec) *httptest.Server {
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		frame := websocket.TextMessage
		if codec.Binary() {
			frame = websocket.BinaryMessage
		}
		welcome, _ := codec.Marshal(&protocol.Envelope{Type: protocol.TypeStart, ID: "me"})
		conn.WriteMessage(frame, welcome)

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			conn.WriteMessage(mt, data)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_RoundTrip(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSON, protocol.Msgpack} {
		t.Run(codec.Name(), func(t *testing.T) {
			ts := echoServer(t, codec)
			client := NewClient("ws"+strings.TrimPrefix(ts.URL, "http"), codec)
			require.NoError(t, client.Connect(context.Background()))
			defer client.Close()

			require.NoError(t, client.Send(&protocol.Envelope{Type: protocol.TypeMessage, Message: "ping"}))

			r := &recorder{}
			for range 2 {
				select {
				case env := <-client.Incoming():
					Dispatch(r, env)
				case <-time.After(2 * time.Second):
					t.Fatal("no envelope from relay")
				}
			}
			assert.Equal(t, []string{"welcome me []", "chat  ping"}, r.calls)
		})
	}
}

func TestHandler_StopsWhenConnectionDrops(t *testing.T) {
	ts := echoServer(t, protocol.JSON)
	client := NewClient("ws"+strings.TrimPrefix(ts.URL, "http"), protocol.JSON)
	require.NoError(t, client.Connect(context.Background()))

	done := make(chan error, 1)
	go func() { done <- NewHandler(client).Run(context.Background(), &recorder{}) }()

	client.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("handler kept running")
	}
}

func TestClient_SendAfterClose(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1/ws", nil)
	client.Close()
	client.Close()
	assert.ErrorIs(t, client.Send(&protocol.Envelope{Type: protocol.TypeMessage}), ErrClosed)
}
