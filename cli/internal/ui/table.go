package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func newTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// RoomListView renders the open rooms the relay announced.
func RoomListView(rooms []string, link func(string) string) string {
	title := TitleStyle.Render(IconRoom + " Open rooms")
	if len(rooms) == 0 {
		return InfoBoxStyle.Render(title + "\n" + MutedStyle.Render("No open rooms"))
	}
	rows := make([][]string, 0, len(rooms))
	for i, r := range rooms {
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), r, link(r)})
	}
	hint := SubtitleStyle.Render(fmt.Sprintf("%d open, join with: warpcall join <room-id>", len(rooms)))
	return InfoBoxStyle.Render(title + "\n" + newTable([]string{"#", "Room", "Link"}, rows).Render() + "\n" + hint)
}

// RenderRoomList outputs the room list directly to stdout
func RenderRoomList(rooms []string, link func(string) string) {
	fmt.Println(RoomListView(rooms, link))
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Ready!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)
	return SuccessBoxStyle.Render(content)
}

// TruncateString shortens s to max runes, marking the cut with an ellipsis.
func TruncateString(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return string(r[:max])
	}
	return strings.TrimSpace(string(r[:max-1])) + "…"
}

// MediaFile is one row of the media table.
type MediaFile struct {
	Source string
	Name   string
	Size   int64
}

// MediaTableView renders the files standing in for camera, screen and mic.
func MediaTableView(files []MediaFile) string {
	if len(files) == 0 {
		return MutedStyle.Render(IconInfo + " No media files, joining receive-only")
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, []string{sourceIcon(f.Source) + " " + f.Source, TruncateString(f.Name, 40), FormatSize(f.Size)})
	}
	return newTable([]string{"Source", "File", "Size"}, rows).Render()
}

func sourceIcon(source string) string {
	switch source {
	case "screenshare":
		return IconScreen
	case "audio":
		return IconMic
	}
	return IconCamera
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
