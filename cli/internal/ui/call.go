package ui

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/warpcall/internal/protocol"
)

// maxChatLines is how much chat history the call view keeps on screen.
const maxChatLines = 12

// Actions are the commands the call view can issue against a session.
type Actions interface {
	SendChat(message string) error
	SetName(name string) error
	ShareScreen() error
	End() error
}

type linkStatus int

const (
	linkConnecting linkStatus = iota
	linkConnected
	linkGone
)

func (s linkStatus) String() string {
	switch s {
	case linkConnecting:
		return "connecting"
	case linkConnected:
		return "connected"
	case linkGone:
		return "gone"
	}
	return "unknown"
}

type linkRow struct {
	remote protocol.ClientID
	kind   protocol.MediaKind
	status linkStatus
	media  []string
	reason string
}

// Messages delivered to the call view from session goroutines.
type (
	peerMsg struct {
		remote protocol.ClientID
		kind   protocol.MediaKind
		status linkStatus
		reason error
	}
	trackMsg struct {
		remote protocol.ClientID
		kind   protocol.MediaKind
		media  string
	}
	chatMsg struct {
		sender  string
		message string
	}
	roomEndedMsg struct{ room protocol.RoomID }
	callErrMsg   struct{ err error }

	// SessionDoneMsg tells the view the session is over.
	SessionDoneMsg struct{ Err error }
)

type chatLine struct {
	sender string
	text   string
	self   bool
	system bool
}

// CallModel is the interactive call screen: participants, chat and a prompt.
type CallModel struct {
	room    protocol.RoomID
	self    protocol.ClientID
	name    string
	link    string
	actions Actions

	links map[string]*linkRow
	chat  []chatLine
	err   error

	input   textinput.Model
	spinner spinner.Model

	ended    bool
	quitting bool
}

// NewCallModel builds the call screen for room.
func NewCallModel(room protocol.RoomID, self protocol.ClientID, link string, actions Actions) *CallModel {
	ti := textinput.New()
	ti.Placeholder = "message, /name NAME, /share, /end, /quit"
	ti.Prompt = IconChat + " "
	ti.CharLimit = 500
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = SpinnerStyle

	return &CallModel{
		room:    room,
		self:    self,
		link:    link,
		actions: actions,
		links:   make(map[string]*linkRow),
		input:   ti,
		spinner: sp,
	}
}

func (m *CallModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m *CallModel) row(remote protocol.ClientID, kind protocol.MediaKind) *linkRow {
	key := protocol.LogicalPeerID(remote, kind)
	r, ok := m.links[key]
	if !ok {
		r = &linkRow{remote: remote, kind: kind}
		m.links[key] = r
	}
	return r
}

func (m *CallModel) system(format string, args ...any) {
	m.appendChat(chatLine{text: fmt.Sprintf(format, args...), system: true})
}

func (m *CallModel) appendChat(l chatLine) {
	m.chat = append(m.chat, l)
	if len(m.chat) > maxChatLines {
		m.chat = m.chat[len(m.chat)-maxChatLines:]
	}
}

func (m *CallModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, nil
			}
			return m, m.submit(line)
		}

	case peerMsg:
		r := m.row(msg.remote, msg.kind)
		r.status = msg.status
		if msg.status == linkGone {
			r.media = nil
			if msg.reason != nil {
				r.reason = msg.reason.Error()
			}
		}
		return m, nil

	case trackMsg:
		r := m.row(msg.remote, msg.kind)
		r.media = append(r.media, msg.media)
		return m, nil

	case chatMsg:
		m.appendChat(chatLine{sender: msg.sender, text: msg.message, self: msg.sender == m.self || msg.sender == m.name})
		return m, nil

	case roomEndedMsg:
		m.ended = true
		m.system("%s Room %s ended", IconHangup, msg.room)
		return m, tea.Quit

	case callErrMsg:
		m.err = msg.err
		return m, nil

	case SessionDoneMsg:
		if msg.Err != nil {
			m.err = msg.Err
		}
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs a prompt line: a slash command or a chat message.
func (m *CallModel) submit(line string) tea.Cmd {
	if !strings.HasPrefix(line, "/") {
		m.report(m.actions.SendChat(line))
		return nil
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/name":
		if arg == "" {
			m.err = fmt.Errorf("usage: /name NAME")
			return nil
		}
		if m.report(m.actions.SetName(arg)) {
			m.name = arg
			m.system("%s You are now %s", IconPeer, arg)
		}
	case "/share":
		if m.report(m.actions.ShareScreen()) {
			m.system("%s Sharing screen", IconScreen)
		}
	case "/end":
		m.report(m.actions.End())
	case "/quit":
		m.quitting = true
		return tea.Quit
	default:
		m.err = fmt.Errorf("unknown command %s", cmd)
	}
	return nil
}

func (m *CallModel) report(err error) bool {
	m.err = err
	return err == nil
}

// Ended reports whether the room was ended while the view was running.
func (m *CallModel) Ended() bool { return m.ended }

func (m *CallModel) View() string {
	var b strings.Builder

	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s Room %s", IconRoom, m.room)))
	b.WriteString(" ")
	b.WriteString(StatusStyle.Render(fmt.Sprintf("%d connected", m.connected())))
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(fmt.Sprintf("%s %s   %s you are %s", IconLink, m.link, IconPeer, m.self)))
	b.WriteString("\n\n")

	if len(m.links) == 0 {
		b.WriteString(fmt.Sprintf("%s %s\n", m.spinner.View(), MutedStyle.Render(IconWaiting+" Waiting for others to join...")))
	} else {
		b.WriteString(participantTable(m.sortedLinks()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, l := range m.chat {
		switch {
		case l.system:
			b.WriteString(MutedStyle.Render(l.text))
		case l.self:
			b.WriteString(ChatSelfStyle.Render(l.sender+":") + " " + l.text)
		default:
			b.WriteString(ChatSenderStyle.Render(l.sender+":") + " " + l.text)
		}
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(FormatError(m.err))
		b.WriteString("\n")
	}

	if !m.quitting && !m.ended {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(FooterStyle.Render("enter send • esc quit"))
	}
	return ContainerStyle.Render(b.String())
}

func (m *CallModel) connected() int {
	n := 0
	for _, r := range m.links {
		if r.status == linkConnected {
			n++
		}
	}
	return n
}

func (m *CallModel) sortedLinks() []*linkRow {
	rows := make([]*linkRow, 0, len(m.links))
	for _, r := range m.links {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].remote != rows[j].remote {
			return rows[i].remote < rows[j].remote
		}
		return rows[i].kind < rows[j].kind
	})
	return rows
}

// ParticipantTable renders one row per peer link.
func participantTable(rows []*linkRow) string {
	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		var status string
		switch r.status {
		case linkConnected:
			status = PeerConnectedStyle.Render(r.status.String())
		case linkGone:
			status = PeerGoneStyle.Render(r.status.String())
		default:
			status = PeerPendingStyle.Render(r.status.String())
		}
		detail := strings.Join(r.media, ", ")
		if r.status == linkGone {
			detail = r.reason
		}
		data = append(data, []string{TruncateString(r.remote, 24), kindLabel(r.kind), status, detail})
	}
	return newTable([]string{"Peer", "Link", "Status", "Media"}, data).Render()
}

func kindLabel(kind protocol.MediaKind) string {
	switch kind {
	case protocol.MediaScreenshare:
		return IconScreen + " " + string(kind)
	case protocol.MediaAudio:
		return IconMic + " " + string(kind)
	}
	return IconCamera + " " + string(kind)
}

// ProgramNotifier forwards session events into a running call view. It
// satisfies call.Notifier. Events raised before Attach are queued.
type ProgramNotifier struct {
	mu      sync.Mutex
	program *tea.Program
	pending []tea.Msg
}

func NewProgramNotifier() *ProgramNotifier {
	return &ProgramNotifier{}
}

// Attach starts delivering to p, replaying queued events first. Call it
// before p.Run.
func (n *ProgramNotifier) Attach(p *tea.Program) {
	n.mu.Lock()
	n.program = p
	pending := n.pending
	n.pending = nil
	if len(pending) == 0 {
		n.mu.Unlock()
		return
	}
	// Send blocks until the program loop runs; keep mu so later events stay
	// behind the replay.
	go func() {
		defer n.mu.Unlock()
		for _, msg := range pending {
			p.Send(msg)
		}
	}()
}

func (n *ProgramNotifier) send(msg tea.Msg) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.program == nil {
		n.pending = append(n.pending, msg)
		return
	}
	n.program.Send(msg)
}

func (n *ProgramNotifier) PeerConnecting(remote protocol.ClientID, kind protocol.MediaKind) {
	n.send(peerMsg{remote: remote, kind: kind, status: linkConnecting})
}

func (n *ProgramNotifier) PeerConnected(remote protocol.ClientID, kind protocol.MediaKind) {
	n.send(peerMsg{remote: remote, kind: kind, status: linkConnected})
}

func (n *ProgramNotifier) PeerGone(remote protocol.ClientID, kind protocol.MediaKind, reason error) {
	n.send(peerMsg{remote: remote, kind: kind, status: linkGone, reason: reason})
}

func (n *ProgramNotifier) PeerTrack(remote protocol.ClientID, kind protocol.MediaKind, track *webrtc.TrackRemote) {
	n.send(trackMsg{remote: remote, kind: kind, media: track.Codec().MimeType})
}

func (n *ProgramNotifier) Chat(sender, message string) {
	n.send(chatMsg{sender: sender, message: message})
}

func (n *ProgramNotifier) RoomEnded(room protocol.RoomID) {
	n.send(roomEndedMsg{room: room})
}

func (n *ProgramNotifier) Error(err error) {
	n.send(callErrMsg{err: err})
}

// Done forwards the end of the session to the view.
func (n *ProgramNotifier) Done(err error) {
	n.send(SessionDoneMsg{Err: err})
}
