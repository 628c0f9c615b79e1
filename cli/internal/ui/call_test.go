package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

type fakeActions struct {
	chats  []string
	names  []string
	shares int
	ends   int
	err    error
}

func (f *fakeActions) SendChat(message string) error {
	f.chats = append(f.chats, message)
	return f.err
}

func (f *fakeActions) SetName(name string) error {
	f.names = append(f.names, name)
	return f.err
}

func (f *fakeActions) ShareScreen() error {
	f.shares++
	return f.err
}

func (f *fakeActions) End() error {
	f.ends++
	return f.err
}

func newTestModel() (*CallModel, *fakeActions) {
	actions := &fakeActions{}
	return NewCallModel("ABCD1234", "self-id", "https://example.com/r/ABCD1234", actions), actions
}

func typeLine(m *CallModel, line string) tea.Cmd {
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(line)})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestCallModel_ChatAndCommands(t *testing.T) {
	m, actions := newTestModel()

	assert.Nil(t, typeLine(m, "hello there"))
	assert.Equal(t, []string{"hello there"}, actions.chats)
	assert.Empty(t, m.input.Value())

	typeLine(m, "/name alice")
	assert.Equal(t, []string{"alice"}, actions.names)

	typeLine(m, "/share")
	assert.Equal(t, 1, actions.shares)

	typeLine(m, "/end")
	assert.Equal(t, 1, actions.ends)

	typeLine(m, "/bogus")
	require.Error(t, m.err)
	assert.Contains(t, m.err.Error(), "/bogus")

	typeLine(m, "/name")
	assert.Len(t, actions.names, 1)

	assert.True(t, isQuit(typeLine(m, "/quit")))
}

func TestCallModel_EmptyLineIsIgnored(t *testing.T) {
	m, actions := newTestModel()
	assert.Nil(t, typeLine(m, "   "))
	assert.Empty(t, actions.chats)
}

func TestCallModel_ActionErrorsAreShown(t *testing.T) {
	m, actions := newTestModel()
	actions.err = errors.New("not in a room")

	typeLine(m, "hi")
	assert.Contains(t, m.View(), "not in a room")

	actions.err = nil
	typeLine(m, "hi again")
	assert.NoError(t, m.err)
}

func TestCallModel_PeerLifecycle(t *testing.T) {
	m, _ := newTestModel()
	assert.Contains(t, m.View(), "Waiting for others")

	m.Update(peerMsg{remote: "peer-b", kind: protocol.MediaVideo, status: linkConnecting})
	m.Update(peerMsg{remote: "peer-b", kind: protocol.MediaScreenshare, status: linkConnecting})
	require.Len(t, m.links, 2)

	m.Update(peerMsg{remote: "peer-b", kind: protocol.MediaVideo, status: linkConnected})
	m.Update(trackMsg{remote: "peer-b", kind: protocol.MediaVideo, media: "video/VP8"})

	view := m.View()
	assert.NotContains(t, view, "Waiting for others")
	assert.Contains(t, view, "peer-b")
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "video/VP8")

	m.Update(peerMsg{remote: "peer-b", kind: protocol.MediaVideo, status: linkGone, reason: errors.New("left the room")})
	row := m.links[protocol.LogicalPeerID("peer-b", protocol.MediaVideo)]
	assert.Equal(t, linkGone, row.status)
	assert.Empty(t, row.media)
	assert.Contains(t, m.View(), "left the room")

	rows := m.sortedLinks()
	assert.Equal(t, protocol.MediaScreenshare, rows[0].kind)
	assert.Equal(t, protocol.MediaVideo, rows[1].kind)
}

func TestCallModel_ChatLog(t *testing.T) {
	m, _ := newTestModel()

	m.Update(chatMsg{sender: "self-id", message: "mine"})
	m.Update(chatMsg{sender: "bob", message: "theirs"})
	require.Len(t, m.chat, 2)
	assert.True(t, m.chat[0].self)
	assert.False(t, m.chat[1].self)

	typeLine(m, "/name alice")
	m.Update(chatMsg{sender: "alice", message: "renamed"})
	assert.True(t, m.chat[len(m.chat)-1].self)

	for i := 0; i < maxChatLines*2; i++ {
		m.Update(chatMsg{sender: "bob", message: "spam"})
	}
	assert.Len(t, m.chat, maxChatLines)
}

func TestCallModel_EndAndDone(t *testing.T) {
	m, _ := newTestModel()
	_, cmd := m.Update(roomEndedMsg{room: "ABCD1234"})
	assert.True(t, isQuit(cmd))
	assert.True(t, m.Ended())
	assert.NotContains(t, m.View(), "enter send")

	m, _ = newTestModel()
	_, cmd = m.Update(SessionDoneMsg{Err: errors.New("relay went away")})
	assert.True(t, isQuit(cmd))
	assert.False(t, m.Ended())
	assert.Contains(t, m.View(), "relay went away")

	m, _ = newTestModel()
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	assert.True(t, isQuit(cmd))
}

func TestProgramNotifier_QueuesUntilAttached(t *testing.T) {
	n := NewProgramNotifier()
	n.PeerConnecting("peer-b", protocol.MediaVideo)
	n.Chat("bob", "hi")
	n.Error(errors.New("boom"))
	n.RoomEnded("ABCD1234")

	require.Len(t, n.pending, 4)
	assert.IsType(t, peerMsg{}, n.pending[0])
	assert.Equal(t, chatMsg{sender: "bob", message: "hi"}, n.pending[1])
	assert.IsType(t, callErrMsg{}, n.pending[2])
	assert.Equal(t, roomEndedMsg{room: "ABCD1234"}, n.pending[3])
}

func TestRoomListView(t *testing.T) {
	link := func(r string) string { return "https://example.com/r/" + r }
	empty := RoomListView(nil, link)
	assert.Contains(t, empty, "Open rooms")
	assert.Contains(t, empty, "No open rooms")

	view := RoomListView([]string{"ABCD1234", "ZZZZ9999"}, link)
	assert.Contains(t, view, "2 open")
	assert.Contains(t, view, "ABCD1234")
	assert.Contains(t, view, "https://example.com/r/ZZZZ9999")
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcd…", TruncateString("abcdefgh", 5))
	assert.Equal(t, "a", TruncateString("abc", 1))
}

func TestMediaTableView(t *testing.T) {
	assert.Contains(t, MediaTableView(nil), "receive-only")

	view := MediaTableView([]MediaFile{{Source: "camera", Name: "cam.ivf", Size: 2048}})
	assert.Contains(t, view, "cam.ivf")
	assert.Contains(t, view, "2.0 KiB")
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.5 KiB", FormatSize(1536))
	assert.Equal(t, "3.0 MiB", FormatSize(3*1024*1024))
}

func TestCallModel_StatusCountsConnectedLinks(t *testing.T) {
	m, _ := newTestModel()
	assert.Contains(t, m.View(), IconWaiting)
	assert.Contains(t, m.View(), "0 connected")

	m.Update(peerMsg{remote: "peer-b", kind: protocol.MediaVideo, status: linkConnected})
	m.Update(peerMsg{remote: "peer-c", kind: protocol.MediaVideo, status: linkConnecting})
	assert.Contains(t, m.View(), "1 connected")

	m.Update(peerMsg{remote: "peer-b", kind: protocol.MediaVideo, status: linkGone})
	assert.Contains(t, m.View(), "0 connected")
}

func TestErrorBoxView(t *testing.T) {
	view := ErrorBoxView(errors.New("relay unreachable"))
	assert.Contains(t, view, "relay unreachable")
	assert.Contains(t, view, IconError)
}

func TestSimpleSpinner(t *testing.T) {
	var out strings.Builder
	sp := NewWaitingSpinner(IconConnect + " dialing")
	sp.out = &out
	sp.Start()
	sp.UpdateMessage("almost")
	sp.Success("connected")
	sp.Stop()

	// The first frame shows whichever message was current when it drew.
	assert.True(t, strings.Contains(out.String(), "dialing") || strings.Contains(out.String(), "almost"))
	assert.Contains(t, out.String(), IconSuccess+" connected\n")
	assert.Equal(t, 1, strings.Count(out.String(), "connected\n"))
}
