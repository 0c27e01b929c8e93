package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Revaiowo/streamRTC/internal/session"
)

// CallUI renders session updates live until the call ends or the user quits.
type CallUI struct {
	program *tea.Program
	model   *callModel
	updates chan session.Update
	wg      sync.WaitGroup
}

type updateMsg session.Update

// LocalMedia describes what this side of the call sends.
type LocalMedia struct {
	Video bool
	Audio bool
}

func (lm LocalMedia) String() string {
	var parts []string
	if lm.Video {
		parts = append(parts, IconCamera+" video")
	}
	if lm.Audio {
		parts = append(parts, IconMic+" audio")
	}
	if len(parts) == 0 {
		return "receive only"
	}
	return "sending " + strings.Join(parts, ", ")
}

type callModel struct {
	update      session.Update
	local       LocalMedia
	connectedAt time.Time
	spinner     spinner.Model
	updates     chan session.Update
	onQuit      func()
	quitting    bool
}

// NewCallUI creates the live call view. onQuit runs when the user presses q.
func NewCallUI(local LocalMedia, onQuit func()) *CallUI {
	updates := make(chan session.Update, 64)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &CallUI{
		updates: updates,
		model: &callModel{
			local:   local,
			spinner: s,
			updates: updates,
			onQuit:  onQuit,
		},
	}
}

// Start runs the program in a goroutine. Inline mode keeps earlier output
// visible.
func (ui *CallUI) Start(opts ...tea.ProgramOption) {
	ui.program = tea.NewProgram(ui.model, opts...)
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		if _, err := ui.program.Run(); err != nil {
			fmt.Printf("UI error: %v\n", err)
		}
	}()
}

// Push hands an update to the view without blocking the session.
func (ui *CallUI) Push(u session.Update) {
	select {
	case ui.updates <- u:
	default:
	}
}

// Stop quits the program and waits for it to restore the terminal.
func (ui *CallUI) Stop() {
	if ui.program != nil {
		ui.program.Quit()
	}
	ui.wg.Wait()
}

func (m *callModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates())
}

func (m *callModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return updateMsg(<-m.updates)
	}
}

func (m *callModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case updateMsg:
		m.update = session.Update(msg)
		if m.update.State == session.Connected && m.connectedAt.IsZero() {
			m.connectedAt = time.Now()
		}
		if m.update.State == session.Failed || m.update.State == session.Closed {
			return m, tea.Quit
		}
		return m, m.listenForUpdates()
	}

	return m, nil
}

func (m *callModel) View() string {
	var b strings.Builder

	u := m.update
	b.WriteString(TitleStyle.Render(IconCall + " streamRTC"))
	b.WriteString("\n")

	if u.Room != "" {
		fmt.Fprintf(&b, "%s Room:   %s\n", IconRoom, BoldStyle.Foreground(Primary).Render(u.Room))
	}
	if u.Role != session.RoleUndecided {
		fmt.Fprintf(&b, "%s Role:   %s\n", IconPeer, u.Role)
	}
	fmt.Fprintf(&b, "%s\n", MutedStyle.Render("Media:  "+m.local.String()))

	switch u.State {
	case session.Connected:
		fmt.Fprintf(&b, "%s %s\n", SuccessStyle.Render(IconConnect), StateText(u))
		if !m.connectedAt.IsZero() {
			fmt.Fprintf(&b, "%s\n", MutedStyle.Render("Duration: "+time.Since(m.connectedAt).Truncate(time.Second).String()))
		}
	case session.Failed:
		fmt.Fprintf(&b, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(StateText(u)))
	case session.Closed:
		fmt.Fprintf(&b, "%s %s\n", MutedStyle.Render(IconInfo), StateText(u))
	case session.Initiating:
		if u.RemotePeer == "" {
			fmt.Fprintf(&b, "%s %s %s\n", m.spinner.View(), IconWaiting, StateText(u))
			break
		}
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), StateText(u))
	default:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), StateText(u))
	}

	if !m.quitting && !u.State.Terminal() {
		b.WriteString(FooterStyle.Render("Press q to leave"))
		b.WriteString("\n")
	}
	return b.String()
}

// StateText describes an update in one line.
func StateText(u session.Update) string {
	switch u.State {
	case session.Idle:
		return "Idle"
	case session.AcquiringMedia:
		return "Opening camera and microphone..."
	case session.AwaitingRole:
		return "Joining room..."
	case session.Initiating:
		if u.RemotePeer == "" {
			return "Waiting for someone to join..."
		}
		return fmt.Sprintf("Calling %s...", shortID(u.RemotePeer))
	case session.Responding:
		return fmt.Sprintf("Answering %s...", shortID(u.RemotePeer))
	case session.Connected:
		if u.RemoteMedia {
			return fmt.Sprintf("In call with %s", shortID(u.RemotePeer))
		}
		return fmt.Sprintf("Connected to %s, waiting for media...", shortID(u.RemotePeer))
	case session.Failed:
		return session.UserMessage(u.Err)
	case session.Closed:
		return "Left the room"
	default:
		return u.State.String()
	}
}

// UpdatePrinter writes one line per state change, for terminals without a
// live view.
type UpdatePrinter struct {
	w    io.Writer
	mu   sync.Mutex
	last *session.Update
}

func NewUpdatePrinter(w io.Writer) *UpdatePrinter {
	return &UpdatePrinter{w: w}
}

func (p *UpdatePrinter) Print(u session.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l := p.last; l != nil && l.State == u.State && l.RemoteMedia == u.RemoteMedia && l.RemotePeer == u.RemotePeer {
		return
	}
	p.last = &u
	fmt.Fprintf(p.w, "[%s] %s\n", u.State, StateText(u))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
