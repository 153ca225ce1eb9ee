package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/bluos/internal/bluos"
	"github.com/muurk/bluos/internal/player"
	"github.com/muurk/bluos/internal/stream"
)

// Controls are the player commands the now-playing view can send
type Controls interface {
	Toggle(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	StepVolume(ctx context.Context, db float64) error
	Mute(ctx context.Context, muted bool) error
	Shuffle(ctx context.Context, on bool) error
	Repeat(ctx context.Context, mode bluos.RepeatMode) error
}

// stateMsg carries a new snapshot from the subscription
type stateMsg player.State

// streamEndedMsg reports that the state subscription closed
type streamEndedMsg struct {
	err error
}

// commandDoneMsg reports the outcome of a key-triggered command
type commandDoneMsg struct {
	name string
	err  error
}

// nowPlayingKeyMap defines key bindings for the now-playing view
type nowPlayingKeyMap struct {
	Toggle     key.Binding
	Next       key.Binding
	Previous   key.Binding
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Mute       key.Binding
	Shuffle    key.Binding
	Repeat     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k nowPlayingKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Next, k.Previous, k.VolumeUp, k.VolumeDown, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k nowPlayingKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Next, k.Previous},
		{k.VolumeUp, k.VolumeDown, k.Mute},
		{k.Shuffle, k.Repeat},
		{k.Help, k.Quit},
	}
}

func newNowPlayingKeyMap() nowPlayingKeyMap {
	return nowPlayingKeyMap{
		Toggle: key.NewBinding(
			key.WithKeys(" ", "space", "p"),
			key.WithHelp("space", "play/pause"),
		),
		Next: key.NewBinding(
			key.WithKeys("n", "right"),
			key.WithHelp("n/→", "next"),
		),
		Previous: key.NewBinding(
			key.WithKeys("b", "left"),
			key.WithHelp("b/←", "previous"),
		),
		VolumeUp: key.NewBinding(
			key.WithKeys("+", "=", "up"),
			key.WithHelp("+", "louder"),
		),
		VolumeDown: key.NewBinding(
			key.WithKeys("-", "down"),
			key.WithHelp("-", "quieter"),
		),
		Mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		Shuffle: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "shuffle"),
		),
		Repeat: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "repeat"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// NowPlayingModel is the live view behind "bluos watch"
type NowPlayingModel struct {
	ctx      context.Context
	controls Controls
	sub      *stream.Subscription[player.State]

	State    player.State
	HasState bool
	Err      error  // why the state stream ended
	Notice   string // outcome of the last command
	Failed   bool   // Notice reports a failure

	Width   int
	Spinner spinner.Model
	Help    help.Model
	Keys    nowPlayingKeyMap
}

// NewNowPlayingModel creates the view over an open state subscription.
// The caller owns sub and closes it once the program has exited.
func NewNowPlayingModel(ctx context.Context, controls Controls, sub *stream.Subscription[player.State]) NowPlayingModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	return NowPlayingModel{
		ctx:      ctx,
		controls: controls,
		sub:      sub,
		Width:    GetTerminalWidth(),
		Spinner:  s,
		Help:     help.New(),
		Keys:     newNowPlayingKeyMap(),
	}
}

// Init starts the spinner and the first wait for state
func (m NowPlayingModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, waitForState(m.sub))
}

// waitForState blocks until the subscription delivers or ends
func waitForState(sub *stream.Subscription[player.State]) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-sub.C()
		if !ok {
			return streamEndedMsg{err: sub.Err()}
		}
		return stateMsg(s)
	}
}

// Update handles state, key and command messages
func (m NowPlayingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Help.Width = m.Width
		return m, nil

	case stateMsg:
		m.State = player.State(msg)
		m.HasState = true
		return m, waitForState(m.sub)

	case streamEndedMsg:
		m.Err = msg.err
		return m, tea.Quit

	case commandDoneMsg:
		if msg.err != nil {
			m.Notice = fmt.Sprintf("%s failed: %s", msg.name, bluos.GetShortErrorMessage(msg.err))
			m.Failed = true
		} else {
			m.Notice = msg.name
			m.Failed = false
		}
		return m, nil

	case spinner.TickMsg:
		if m.HasState {
			return m, nil
		}
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m NowPlayingModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Help):
		m.Help.ShowAll = !m.Help.ShowAll
		return m, nil

	case key.Matches(msg, m.Keys.Toggle):
		return m, m.run("play/pause", m.controls.Toggle)

	case key.Matches(msg, m.Keys.Next):
		return m, m.run("next", m.controls.Next)

	case key.Matches(msg, m.Keys.Previous):
		return m, m.run("previous", m.controls.Previous)

	case key.Matches(msg, m.Keys.VolumeUp):
		return m, m.run("volume up", func(ctx context.Context) error {
			return m.controls.StepVolume(ctx, bluos.DefaultVolumeStep)
		})

	case key.Matches(msg, m.Keys.VolumeDown):
		return m, m.run("volume down", func(ctx context.Context) error {
			return m.controls.StepVolume(ctx, -bluos.DefaultVolumeStep)
		})

	case key.Matches(msg, m.Keys.Mute):
		muted := m.State.Volume != nil && m.State.Volume.Muted != nil && *m.State.Volume.Muted
		name := "mute"
		if muted {
			name = "unmute"
		}
		return m, m.run(name, func(ctx context.Context) error {
			return m.controls.Mute(ctx, !muted)
		})

	case key.Matches(msg, m.Keys.Shuffle):
		on := m.State.Playback != nil && m.State.Playback.Shuffle != nil && *m.State.Playback.Shuffle
		return m, m.run("shuffle", func(ctx context.Context) error {
			return m.controls.Shuffle(ctx, !on)
		})

	case key.Matches(msg, m.Keys.Repeat):
		var current bluos.RepeatMode
		if m.State.Playback != nil {
			current = m.State.Playback.Repeat
		}
		mode := NextRepeatMode(current)
		return m, m.run("repeat "+string(mode), func(ctx context.Context) error {
			return m.controls.Repeat(ctx, mode)
		})
	}

	return m, nil
}

// run sends a command in the background and reports back with commandDoneMsg
func (m NowPlayingModel) run(name string, cmd func(ctx context.Context) error) tea.Cmd {
	parent := m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, bluos.DefaultTimeout)
		defer cancel()
		return commandDoneMsg{name: name, err: cmd(ctx)}
	}
}

// NextRepeatMode cycles off → all → one → off
func NextRepeatMode(current bluos.RepeatMode) bluos.RepeatMode {
	switch current {
	case bluos.RepeatAll:
		return bluos.RepeatOne
	case bluos.RepeatOne:
		return bluos.RepeatOff
	default:
		return bluos.RepeatAll
	}
}

// View renders the card, the last command outcome and the key help
func (m NowPlayingModel) View() string {
	var b strings.Builder

	if !m.HasState {
		b.WriteString(m.Spinner.View() + " Waiting for a player...")
	} else {
		b.WriteString(RenderState(m.State, m.Width))
	}
	b.WriteString("\n")

	if m.Notice != "" {
		if m.Failed {
			b.WriteString(ErrorMessageStyle.Render("  " + m.Notice))
		} else {
			b.WriteString(NoteStyle.Render("  " + m.Notice))
		}
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.Help.View(m.Keys)))
	b.WriteString("\n")
	return b.String()
}

// RunNowPlaying runs the live view until the user quits, ctx ends or the
// state stream fails. A stream failure is returned.
func RunNowPlaying(ctx context.Context, controls Controls, states stream.Source[player.State]) error {
	sub := states.Subscribe()
	defer sub.Close()

	program := tea.NewProgram(
		NewNowPlayingModel(ctx, controls, sub),
		tea.WithContext(ctx),
		tea.WithAltScreen(),
	)

	final, err := program.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("now playing view: %w", err)
	}
	if m, ok := final.(NowPlayingModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}
