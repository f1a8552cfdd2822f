// Package tui renders a single echo room in the terminal on top of a
// polling session.
package tui

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/npezzotti/go-echo/pkg/poller"
	"github.com/npezzotti/go-echo/pkg/types"
)

const actionTimeout = 10 * time.Second

const defaultReaction = "👍"

// Session is the part of *poller.Session the room view drives.
type Session interface {
	Updates() <-chan poller.State
	Snapshot() poller.State
	SendMessage(ctx context.Context, content string, msgType types.MessageType) (types.Message, error)
	EditMessage(ctx context.Context, messageId, content string) (types.Message, error)
	DeleteMessage(ctx context.Context, messageId string) error
	ReactToMessage(ctx context.Context, messageId, emoji string) error
	ClipMessage(ctx context.Context, messageId string) (types.Clip, error)
	Keystroke()
}

// -- messages --

type stateMsg poller.State

type actionMsg struct {
	status string
	err    error
}

type copyMsg struct {
	what string
	err  error
}

// -- model --

type Model struct {
	session  Session
	roomCode string
	userId   string

	state  poller.State
	width  int
	height int

	input        string
	inputFocused bool
	editingId    string
	selected     int
	status       string
}

func New(s Session, roomCode, userId string) Model {
	return Model{
		session:      s,
		roomCode:     roomCode,
		userId:       userId,
		state:        s.Snapshot(),
		inputFocused: true,
		selected:     -1,
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForState()
}

func (m Model) waitForState() tea.Cmd {
	ch := m.session.Updates()
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(st)
	}
}

// action runs fn off the UI goroutine and reports its outcome in the status
// line.
func action(success string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return actionMsg{status: success, err: fn(ctx)}
	}
}

func copyCmd(what, text string) tea.Cmd {
	return func() tea.Msg {
		return copyMsg{what: what, err: clipboard.WriteAll(text)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case stateMsg:
		m.state = poller.State(msg)
		if m.selected >= len(m.state.Messages) {
			m.selected = len(m.state.Messages) - 1
		}
		return m, m.waitForState()

	case actionMsg:
		if msg.err != nil {
			m.status = "failed: " + msg.err.Error()
		} else {
			m.status = msg.status
		}

	case copyMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "copied " + msg.what
		}

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.inputFocused {
			return m.updateInput(msg)
		}
		return m.updateNav(msg)
	}
	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "esc":
		m.inputFocused = false
		m.editingId = ""
		m.input = ""
		if m.selected < 0 {
			m.selected = len(m.state.Messages) - 1
		}
		return m, nil

	case "enter":
		body := strings.TrimSpace(m.input)
		if body == "" {
			return m, nil
		}
		m.input = ""
		s := m.session

		if id := m.editingId; id != "" {
			m.editingId = ""
			return m, action("edited", func(ctx context.Context) error {
				_, err := s.EditMessage(ctx, id, body)
				return err
			})
		}

		content, msgType := parseInput(body)
		return m, action("", func(ctx context.Context) error {
			_, err := s.SendMessage(ctx, content, msgType)
			return err
		})

	default:
		before := m.input
		m.input = editRune(m.input, key)
		if m.input != before {
			m.session.Keystroke()
		}
		return m, nil
	}
}

func (m Model) updateNav(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session
	sel, ok := m.selectedMessage()

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "i", "enter":
		m.inputFocused = true
	case "j", "down":
		if m.selected < len(m.state.Messages)-1 {
			m.selected++
		}
	case "k", "up":
		if m.selected > 0 {
			m.selected--
		}
	case "R":
		return m, copyCmd("room code", m.roomCode)
	case "y":
		if ok {
			return m, copyCmd("message", sel.Content)
		}
	case "r":
		if ok {
			return m, action("", func(ctx context.Context) error {
				return s.ReactToMessage(ctx, sel.Id, defaultReaction)
			})
		}
	case "c":
		if ok {
			return m, action("clipped", func(ctx context.Context) error {
				_, err := s.ClipMessage(ctx, sel.Id)
				return err
			})
		}
	case "e":
		if ok && sel.UserId == m.userId {
			m.editingId = sel.Id
			m.input = sel.Content
			m.inputFocused = true
		}
	case "d":
		if ok && sel.UserId == m.userId {
			return m, action("deleted", func(ctx context.Context) error {
				return s.DeleteMessage(ctx, sel.Id)
			})
		}
	}
	return m, nil
}

func (m Model) selectedMessage() (types.Message, bool) {
	if m.selected < 0 || m.selected >= len(m.state.Messages) {
		return types.Message{}, false
	}
	return m.state.Messages[m.selected], true
}

func (m Model) View() string {
	var b strings.Builder

	header := titleStyle.Render("echo") + metaStyle.Render(" · ") + accentStyle.Render(m.roomCode)
	header += dimStyle.Render(fmt.Sprintf("  %d online", len(m.state.OnlineUsers)))
	if !m.state.IsConnected {
		header += "  " + offlineStyle.Render("reconnecting…")
	}
	b.WriteString(" " + header + "\n")

	sep := strings.Repeat("─", max(m.width-2, 4))
	b.WriteString(" " + metaStyle.Render(sep) + "\n")

	lines := m.messageLines()
	viewportHeight := max(m.height-5, 2)
	start := max(len(lines)-viewportHeight, 0)
	visible := lines[start:]
	for i := len(visible); i < viewportHeight; i++ {
		b.WriteByte('\n')
	}
	for _, line := range visible {
		b.WriteString(line + "\n")
	}

	b.WriteString(" " + dimStyle.Render(m.typingLine()) + "\n")
	b.WriteString(m.renderInput() + "\n")
	if m.status != "" {
		b.WriteString(" " + dimStyle.Render(m.status))
	}

	return b.String()
}

func (m Model) messageLines() []string {
	if m.state.IsLoading && len(m.state.Messages) == 0 {
		return []string{" " + dimStyle.Render("loading...")}
	}
	if len(m.state.Messages) == 0 {
		return []string{" " + dimStyle.Render("no messages yet · messages vanish after an hour")}
	}

	lines := make([]string, 0, len(m.state.Messages))
	for i, msg := range m.state.Messages {
		line := m.renderMessage(msg)
		if i == m.selected && !m.inputFocused {
			line = selectedRowBg.Render(line)
		}
		lines = append(lines, line)
	}
	return lines
}

func (m Model) renderMessage(msg types.Message) string {
	timePart := metaStyle.Render(fmt.Sprintf("%5s", msg.CreatedAt.Local().Format("15:04")))

	var namePart string
	if msg.UserId == m.userId {
		namePart = selfNameStyle.Render("you")
	} else {
		namePart = nameStyle.Render(msg.Username)
	}

	body := msg.Content
	switch msg.Type {
	case types.MessageTypeGif:
		body = "[gif] " + body
	case types.MessageTypeImage:
		body = "[image] " + body
	}
	body = bodyStyle.Render(truncStr(body, max(m.width-30, 20)))
	if msg.EditedAt != nil {
		body += metaStyle.Render(" (edited)")
	}

	line := fmt.Sprintf(" %s %s %s", timePart, namePart, body)
	if r := renderReactions(msg.Reactions); r != "" {
		line += "  " + reactionStyle.Render(r)
	}
	return line
}

func renderReactions(r types.Reactions) string {
	emojis := make([]string, 0, len(r))
	for e := range r {
		emojis = append(emojis, e)
	}
	sort.Strings(emojis)

	parts := make([]string, 0, len(emojis))
	for _, e := range emojis {
		parts = append(parts, fmt.Sprintf("%s %d", e, len(r[e])))
	}
	return strings.Join(parts, " ")
}

func (m Model) typingLine() string {
	switch n := len(m.state.TypingUsers); n {
	case 0:
		return ""
	case 1:
		return m.state.TypingUsers[0].Username + " is typing…"
	case 2:
		return m.state.TypingUsers[0].Username + " and " + m.state.TypingUsers[1].Username + " are typing…"
	default:
		return fmt.Sprintf("%d people are typing…", n)
	}
}

func (m Model) renderInput() string {
	prompt := inputPromptStyle.Render(" > ")
	if m.editingId != "" {
		prompt = inputPromptStyle.Render(" edit > ")
	}
	if !m.inputFocused {
		return prompt + inputPlaceholderStyle.Render("i type · j/k select · r react · c clip · y copy · e edit · d delete · q quit")
	}
	if m.input == "" {
		return prompt + inputPlaceholderStyle.Render("say something, /gif or /img to share a link")
	}
	return prompt + m.input + accentStyle.Render("▏")
}
