package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/fieldsync/internal/protocol"
	"github.com/muurk/fieldsync/internal/registry"
)

// MoveStep is how far one key press moves the player, in field units.
const MoveStep = 10.0

// visibleChatLines is the number of chat lines shown under the field.
const visibleChatLines = 5

// Sender sends client messages. *client.Client implements it.
type Sender interface {
	Move(x, y float64) error
	Chat(message string) error
	ChangeNick(nickname string) error
}

// inputMode selects what key presses do.
type inputMode int

const (
	modePlay inputMode = iota
	modeChat
	modeNick
)

// Messages for async operations
type serverMsg struct{ msg protocol.ServerMessage }
type disconnectedMsg struct{}
type sendErrMsg struct{ err error }

// playKeyMap defines key bindings while moving around the field
type playKeyMap struct {
	Up    key.Binding
	Down  key.Binding
	Left  key.Binding
	Right key.Binding
	Chat  key.Binding
	Nick  key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k playKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Left, k.Right, k.Chat, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k playKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Chat, k.Nick, k.Help, k.Quit},
	}
}

// inputKeyMap defines key bindings while typing
type inputKeyMap struct {
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k inputKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Confirm, k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k inputKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Confirm, k.Cancel}}
}

func newPlayKeyMap() playKeyMap {
	return playKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "w"),
			key.WithHelp("↑/w", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "s"),
			key.WithHelp("↓/s", "down"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "a"),
			key.WithHelp("←/a", "left"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "d"),
			key.WithHelp("→/d", "right"),
		),
		Chat: key.NewBinding(
			key.WithKeys("enter", "t"),
			key.WithHelp("enter/t", "chat"),
		),
		Nick: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "nickname"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

func newInputKeyMap() inputKeyMap {
	return inputKeyMap{
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// Model is the interactive terminal client.
type Model struct {
	sender   Sender
	incoming <-chan protocol.ServerMessage
	title    string

	Field *Field
	mode  inputMode
	input textinput.Model

	help      help.Model
	playKeys  playKeyMap
	inputKeys inputKeyMap

	Width  int
	Height int

	Disconnected bool
	Err          error
}

// NewModel creates a model that sends through sender and applies messages
// read from incoming. title is shown in the header, typically the URL.
func NewModel(sender Sender, incoming <-chan protocol.ServerMessage, title string) Model {
	input := textinput.New()
	input.CharLimit = 280
	input.Prompt = "› "
	input.PromptStyle = PromptStyle

	width, height := GetTerminalSize()

	return Model{
		sender:    sender,
		incoming:  incoming,
		title:     title,
		Field:     NewField(),
		input:     input,
		help:      help.New(),
		playKeys:  newPlayKeyMap(),
		inputKeys: newInputKeyMap(),
		Width:     width,
		Height:    height,
	}
}

// Init starts waiting for server messages.
func (m Model) Init() tea.Cmd {
	return waitForMessage(m.incoming)
}

func waitForMessage(ch <-chan protocol.ServerMessage) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverMsg{msg: msg}
	}
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case serverMsg:
		_ = msg.msg.Accept(m.Field)
		return m, waitForMessage(m.incoming)

	case disconnectedMsg:
		m.Disconnected = true
		return m, tea.Quit

	case sendErrMsg:
		m.Err = msg.err
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.mode != modePlay {
			return m.updateInput(msg)
		}
		return m.updatePlay(msg)
	}

	// Cursor blink and other input messages.
	if m.mode != modePlay {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updatePlay(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.playKeys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.playKeys.Up):
		return m, m.move(0, -MoveStep)
	case key.Matches(msg, m.playKeys.Down):
		return m, m.move(0, MoveStep)
	case key.Matches(msg, m.playKeys.Left):
		return m, m.move(-MoveStep, 0)
	case key.Matches(msg, m.playKeys.Right):
		return m, m.move(MoveStep, 0)
	case key.Matches(msg, m.playKeys.Chat):
		return m.startInput(modeChat, "say something")
	case key.Matches(msg, m.playKeys.Nick):
		return m.startInput(modeNick, "new nickname")
	case key.Matches(msg, m.playKeys.Help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m Model) startInput(mode inputMode, placeholder string) (tea.Model, tea.Cmd) {
	if !m.Field.Joined {
		return m, nil
	}
	m.mode = mode
	m.input.Placeholder = placeholder
	m.input.SetValue("")
	return m, m.input.Focus()
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.inputKeys.Cancel):
		m.mode = modePlay
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.inputKeys.Confirm):
		text := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = modePlay
		m.input.Blur()
		if text == "" {
			return m, nil
		}
		if mode == modeNick {
			m.Field.RenameSelf(text)
			return m, m.send(func(s Sender) error { return s.ChangeNick(text) })
		}
		return m, m.send(func(s Sender) error { return s.Chat(text) })
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// move sends a position relative to this client's last known position.
// The local position only changes when the server echoes the move.
func (m Model) move(dx, dy float64) tea.Cmd {
	self, ok := m.Field.Self()
	if !ok {
		return nil
	}
	x, y := registry.Clamp(self.X+dx, self.Y+dy)
	return m.send(func(s Sender) error { return s.Move(x, y) })
}

func (m Model) send(fn func(Sender) error) tea.Cmd {
	sender := m.sender
	return func() tea.Msg {
		if err := fn(sender); err != nil {
			return sendErrMsg{err: err}
		}
		return nil
	}
}

// View renders the screen
func (m Model) View() string {
	width := max(m.Width, MinTerminalWidth)
	height := max(m.Height, MinTerminalHeight)

	var sections []string

	status := "connecting…"
	if m.Field.Joined {
		status = fmt.Sprintf("%d players", len(m.Field.Players()))
		if self, ok := m.Field.Self(); ok {
			status = fmt.Sprintf("%s as %s", status, self.Nickname)
		}
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		HeaderTitleStyle.Render("FIELDSYNC"),
		HeaderCommandStyle.Render(m.title),
		HeaderCommandStyle.Render(StatusStyle.Render(status)),
	)
	sections = append(sections, header)

	// Header, chat, input, status and help take the remaining rows.
	fieldHeight := max(height-visibleChatLines-6, 6)
	sections = append(sections, m.Field.Render(width, fieldHeight))

	sections = append(sections, m.renderChat(width))

	switch m.mode {
	case modeChat, modeNick:
		sections = append(sections, m.input.View())
	default:
		sections = append(sections, "")
	}

	switch {
	case m.Err != nil:
		sections = append(sections, ErrorMessageStyle.Render(FailureMarker+" "+m.Err.Error()))
	case m.Field.LastError != "":
		sections = append(sections, ErrorMessageStyle.Render(FailureMarker+" "+m.Field.LastError))
	case m.Disconnected:
		sections = append(sections, ErrorMessageStyle.Render(FailureMarker+" disconnected"))
	}

	if m.mode == modePlay {
		sections = append(sections, m.help.View(m.playKeys))
	} else {
		sections = append(sections, m.help.View(m.inputKeys))
	}

	return strings.Join(sections, "\n")
}

func (m Model) renderChat(width int) string {
	lines := m.Field.Chat
	if len(lines) > visibleChatLines {
		lines = lines[len(lines)-visibleChatLines:]
	}

	rendered := make([]string, 0, visibleChatLines)
	for _, line := range lines {
		text := line.Message
		if limit := width - len(line.Nickname) - 4; limit > 0 {
			if r := []rune(text); len(r) > limit {
				text = string(r[:limit]) + "…"
			}
		}
		rendered = append(rendered, ChatNickStyle.Render(line.Nickname+":")+" "+ChatTextStyle.Render(text))
	}
	for len(rendered) < visibleChatLines {
		rendered = append(rendered, "")
	}
	return strings.Join(rendered, "\n")
}
