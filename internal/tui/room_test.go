package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/npezzotti/go-echo/pkg/poller"
	"github.com/npezzotti/go-echo/pkg/types"
)

type fakeSession struct {
	updates    chan poller.State
	keystrokes int
	sent       []string
	sentTypes  []types.MessageType
	edited     map[string]string
	deleted    []string
	reacted    []string
	clipped    []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{updates: make(chan poller.State, 1), edited: make(map[string]string)}
}

func (f *fakeSession) Updates() <-chan poller.State { return f.updates }

func (f *fakeSession) Snapshot() poller.State {
	return poller.State{IsConnected: true, IsLoading: true}
}

func (f *fakeSession) SendMessage(ctx context.Context, content string, msgType types.MessageType) (types.Message, error) {
	f.sent = append(f.sent, content)
	f.sentTypes = append(f.sentTypes, msgType)
	return types.Message{Content: content}, nil
}

func (f *fakeSession) EditMessage(ctx context.Context, messageId, content string) (types.Message, error) {
	f.edited[messageId] = content
	return types.Message{Id: messageId, Content: content}, nil
}

func (f *fakeSession) DeleteMessage(ctx context.Context, messageId string) error {
	f.deleted = append(f.deleted, messageId)
	return nil
}

func (f *fakeSession) ReactToMessage(ctx context.Context, messageId, emoji string) error {
	f.reacted = append(f.reacted, messageId+" "+emoji)
	return nil
}

func (f *fakeSession) ClipMessage(ctx context.Context, messageId string) (types.Clip, error) {
	f.clipped = append(f.clipped, messageId)
	return types.Clip{MessageId: messageId}, nil
}

func (f *fakeSession) Keystroke() { f.keystrokes++ }

func newTestModel(s *fakeSession) Model {
	m := New(s, "ABC123", "u1")
	m.width = 100
	m.height = 24
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func testState() poller.State {
	now := time.Now()
	return poller.State{
		IsConnected: true,
		Messages: []types.Message{
			{Id: "m1", UserId: "u2", Username: "bob", Content: "hi there", CreatedAt: now},
			{Id: "m2", UserId: "u1", Username: "alice", Content: "hello", CreatedAt: now, Reactions: types.Reactions{"🔥": {"u2"}}},
		},
		OnlineUsers: []types.User{{UserId: "u1"}, {UserId: "u2"}},
		TypingUsers: []types.TypingUser{{UserId: "u2", Username: "bob"}},
	}
}

func TestRoomRendersState(t *testing.T) {
	m := newTestModel(newFakeSession())
	m, cmd := update(t, m, stateMsg(testState()))
	if cmd == nil {
		t.Fatal("expected a command waiting for the next state")
	}

	view := m.View()
	for _, want := range []string{"ABC123", "2 online", "bob", "hi there", "you", "hello", "🔥 1", "bob is typing"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view, got:\n%s", want, view)
		}
	}
	if strings.Contains(view, "reconnecting") {
		t.Errorf("did not expect a reconnecting banner while connected")
	}
}

func TestRoomShowsDisconnected(t *testing.T) {
	m := newTestModel(newFakeSession())
	st := testState()
	st.IsConnected = false
	m, _ = update(t, m, stateMsg(st))

	if !strings.Contains(m.View(), "reconnecting") {
		t.Errorf("expected reconnecting banner, got:\n%s", m.View())
	}
}

func TestRoomLoadingAndEmpty(t *testing.T) {
	m := newTestModel(newFakeSession())
	if !strings.Contains(m.View(), "loading...") {
		t.Errorf("expected loading state before the first poll, got:\n%s", m.View())
	}

	m, _ = update(t, m, stateMsg(poller.State{IsConnected: true}))
	if !strings.Contains(m.View(), "no messages yet") {
		t.Errorf("expected empty state, got:\n%s", m.View())
	}
}

func TestRoomSendMessage(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(s)

	m = typeText(t, m, "hey")
	if s.keystrokes != 3 {
		t.Errorf("expected 3 keystrokes reported, got %d", s.keystrokes)
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected a send command")
	}
	if m.input != "" {
		t.Errorf("expected input cleared, got %q", m.input)
	}

	msg := cmd().(actionMsg)
	if msg.err != nil {
		t.Fatalf("unexpected error: %v", msg.err)
	}
	if len(s.sent) != 1 || s.sent[0] != "hey" || s.sentTypes[0] != types.MessageTypeText {
		t.Errorf("unexpected sends: %v %v", s.sent, s.sentTypes)
	}
}

func TestRoomSendGif(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(s)

	m = typeText(t, m, "/gif https://example.com/a.gif")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	cmd()

	if len(s.sent) != 1 || s.sent[0] != "https://example.com/a.gif" || s.sentTypes[0] != types.MessageTypeGif {
		t.Errorf("unexpected sends: %v %v", s.sent, s.sentTypes)
	}
}

func TestRoomEmptyInputIgnored(t *testing.T) {
	m := newTestModel(newFakeSession())
	m = typeText(t, m, "  ")
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("expected no command for blank input")
	}
}

func TestRoomNavActions(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(s)
	m, _ = update(t, m, stateMsg(testState()))

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.inputFocused {
		t.Fatal("expected nav mode after esc")
	}
	if m.selected != 1 {
		t.Fatalf("expected newest message selected, got %d", m.selected)
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	if m.selected != 0 {
		t.Fatalf("expected selection to move up, got %d", m.selected)
	}

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	cmd()
	if len(s.reacted) != 1 || s.reacted[0] != "m1 👍" {
		t.Errorf("unexpected reactions: %v", s.reacted)
	}

	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'c'}})
	if got := cmd().(actionMsg); got.status != "clipped" {
		t.Errorf("expected clipped status, got %+v", got)
	}
	if len(s.clipped) != 1 || s.clipped[0] != "m1" {
		t.Errorf("unexpected clips: %v", s.clipped)
	}

	// bob's message cannot be edited or deleted
	m2, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	if cmd != nil || m2.editingId != "" {
		t.Error("expected delete of another user's message to be ignored")
	}
}

func TestRoomEditOwnMessage(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(s)
	m, _ = update(t, m, stateMsg(testState()))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	if m.editingId != "m2" || m.input != "hello" || !m.inputFocused {
		t.Fatalf("expected edit of m2 to start, got id=%q input=%q", m.editingId, m.input)
	}

	m = typeText(t, m, "!")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if got := cmd().(actionMsg); got.err != nil || got.status != "edited" {
		t.Errorf("unexpected result: %+v", got)
	}
	if s.edited["m2"] != "hello!" {
		t.Errorf("expected m2 edited, got %v", s.edited)
	}
	if m.editingId != "" {
		t.Error("expected edit mode cleared")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	cmd()
	if len(s.deleted) != 1 || s.deleted[0] != "m2" {
		t.Errorf("unexpected deletes: %v", s.deleted)
	}
}

func TestRoomStatusLine(t *testing.T) {
	m := newTestModel(newFakeSession())
	m, _ = update(t, m, actionMsg{err: context.DeadlineExceeded})
	if !strings.Contains(m.View(), "failed: context deadline exceeded") {
		t.Errorf("expected failure in status line, got:\n%s", m.View())
	}
}

func TestEditRune(t *testing.T) {
	tcases := []struct {
		name, text, key, want string
	}{
		{"append", "ab", "c", "abc"},
		{"backspace", "ab", "backspace", "a"},
		{"backspace multibyte", "a👍", "backspace", "a"},
		{"backspace empty", "", "backspace", ""},
		{"ignores named keys", "ab", "tab", "ab"},
		{"space", "a", "space", "a "},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			if got := editRune(tc.text, tc.key); got != tc.want {
				t.Errorf("editRune(%q, %q) = %q, want %q", tc.text, tc.key, got, tc.want)
			}
		})
	}
}
