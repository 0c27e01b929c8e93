package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/text"
	pretty "github.com/jedib0t/go-pretty/v6/table"
)

// RoomRow is one occupied room as reported by the relay.
type RoomRow struct {
	Room    string
	Members []string
}

// RenderRooms writes the rooms listing as a table.
func RenderRooms(w io.Writer, rooms []RoomRow, capacity int) {
	if len(rooms) == 0 {
		fmt.Fprintln(w, MutedStyle.Render("No active rooms"))
		return
	}

	tw := pretty.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(pretty.StyleRounded)
	tw.Style().Format.Header = text.FormatUpper
	tw.AppendHeader(pretty.Row{"#", "Room", "Occupancy", "Members"})

	for i, r := range rooms {
		members := make([]string, len(r.Members))
		for j, m := range r.Members {
			members[j] = shortID(m)
		}
		tw.AppendRow(pretty.Row{i + 1, r.Room, fmt.Sprintf("%d/%d", len(r.Members), capacity), strings.Join(members, ", ")})
	}
	tw.AppendFooter(pretty.Row{"", "Total", len(rooms), ""})
	tw.Render()
}

// CallSummary is shown once the call has ended.
type CallSummary struct {
	Room     string
	Role     string
	Peer     string
	Duration string
	Packets  uint64
	Bytes    uint64
	Outcome  string
}

func CallSummaryView(summary CallSummary) string {
	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Room", summary.Room},
		{"Role", summary.Role},
		{"Peer", shortID(summary.Peer)},
		{"Duration", summary.Duration},
		{"Packets received", fmt.Sprintf("%d", summary.Packets)},
		{"Data received", formatBytes(summary.Bytes)},
		{"Outcome", summary.Outcome},
	}

	tbl := table.New().
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

	return tbl.Render()
}

func RenderCallSummary(summary CallSummary) {
	fmt.Println(CallSummaryView(summary))
}

// RoomInfo is the box printed when joining a room.
type RoomInfo struct {
	RoomID    string
	ServerURL string
	Created   bool
}

func NewRoomInfo(roomID, serverURL string, created bool) *RoomInfo {
	return &RoomInfo{RoomID: roomID, ServerURL: serverURL, Created: created}
}

func (r *RoomInfo) View() string {
	title := "Joining room"
	style := InfoBoxStyle
	if r.Created {
		title = "Room created!"
		style = SuccessBoxStyle
	}

	content := fmt.Sprintf("%s %s\n\n%s Room ID:  %s\n%s Relay:    %s\n\n%s",
		IconRoom, title,
		IconCall, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconConnect, MutedStyle.Render(r.ServerURL),
		MutedStyle.Render("Share the room ID with the person you want to call."),
	)
	return style.Render(content)
}

func formatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
