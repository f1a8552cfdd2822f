// Package poller keeps a local copy of a room in sync with the server by
// polling. It merges poll results by message id, applies optimistic local
// mutations and debounces connectivity and typing signals.
package poller

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-echo/pkg/client"
	"github.com/npezzotti/go-echo/pkg/clips"
	"github.com/npezzotti/go-echo/pkg/types"
)

const (
	DefaultInterval         = 2 * time.Second
	DefaultFailureThreshold = 3
	DefaultTypingIdle       = time.Second
	DefaultTypingRefresh    = 2 * time.Second
)

// API is the subset of the HTTP client a session needs.
type API interface {
	Join(ctx context.Context, req types.JoinRoomRequest) (*types.JoinResponse, error)
	Leave(ctx context.Context, roomCode, userId string) error
	Poll(ctx context.Context, p client.PollParams) (*types.PollResponse, error)
	SendMessage(ctx context.Context, req types.SendMessageRequest) (*types.Message, error)
	EditMessage(ctx context.Context, req types.EditMessageRequest) (*types.Message, error)
	DeleteMessage(ctx context.Context, messageId, userId string) error
	ToggleReaction(ctx context.Context, req types.ReactionRequest) (*types.ReactionResponse, error)
	SetTyping(ctx context.Context, req types.TypingRequest) error
	ClipMessage(ctx context.Context, req types.ClipRequest) (*types.Clip, error)
}

var _ API = (*client.Client)(nil)

type Config struct {
	RoomCode string
	UserId   string
	Username string

	// Interval between scheduled polls.
	Interval time.Duration
	// FailureThreshold is the number of consecutive failed polls after
	// which the session reports itself disconnected.
	FailureThreshold int
	// TypingIdle is the pause after the last keystroke before typing is
	// cleared.
	TypingIdle time.Duration
	// TypingRefresh is how often a continuous typist re-announces typing.
	TypingRefresh time.Duration

	// Clips receives a local snapshot of every clipped message when set.
	Clips *clips.Library
}

// State is a snapshot of the session.
type State struct {
	Messages      []types.Message
	TypingUsers   []types.TypingUser
	OnlineUsers   []types.User
	IsConnected   bool
	IsLoading     bool
	LastMessageId string
}

type Session struct {
	api API
	log *log.Logger
	cfg Config
	now func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	messages    map[string]types.Message
	removed     map[string]struct{}
	pending     map[string]int
	stale       map[string]struct{}
	typingUsers []types.TypingUser
	onlineUsers []types.User
	connected   bool
	loading     bool
	failures    int
	cursor      string
	since       int64
	resync      bool
	inFlight    bool
	again       bool

	kick    chan struct{}
	updates chan State

	typing *typingDebouncer
	closed sync.Once
}

func NewSession(api API, logger *log.Logger, cfg Config) *Session {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.TypingIdle <= 0 {
		cfg.TypingIdle = DefaultTypingIdle
	}
	if cfg.TypingRefresh <= 0 {
		cfg.TypingRefresh = DefaultTypingRefresh
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		api:       api,
		log:       logger,
		cfg:       cfg,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		messages:  make(map[string]types.Message),
		removed:   make(map[string]struct{}),
		pending:   make(map[string]int),
		stale:     make(map[string]struct{}),
		connected: true,
		loading:   true,
		kick:      make(chan struct{}, 1),
		updates:   make(chan State, 1),
	}
	s.typing = newTypingDebouncer(s)

	return s
}

// WithClock replaces the clock used for local expiry and typing refresh.
func (s *Session) WithClock(now func() time.Time) *Session {
	s.now = now
	return s
}

// Updates delivers the latest state after every change. Slow readers only
// see the most recent state.
func (s *Session) Updates() <-chan State {
	return s.updates
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	return State{
		Messages:      sortedMessages(s.messages),
		TypingUsers:   append([]types.TypingUser(nil), s.typingUsers...),
		OnlineUsers:   append([]types.User(nil), s.onlineUsers...),
		IsConnected:   s.connected,
		IsLoading:     s.loading,
		LastMessageId: s.cursor,
	}
}

// publishLocked hands the current state to Updates, replacing an unread one.
func (s *Session) publishLocked() {
	st := s.snapshotLocked()
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- st:
	default:
	}
}

// Join announces the user in the room.
func (s *Session) Join(ctx context.Context) (*types.JoinResponse, error) {
	return s.api.Join(ctx, types.JoinRoomRequest{
		RoomCode: s.cfg.RoomCode,
		UserId:   s.cfg.UserId,
		Username: s.cfg.Username,
	})
}

// Run polls immediately and then on every interval until ctx is done or the
// session is closed. Polls requested by mutations run as soon as possible.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.Poll(ctx) //nolint:errcheck // recorded in the session state

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
			s.Poll(ctx) //nolint:errcheck
		case <-s.kick:
			s.Poll(ctx) //nolint:errcheck
		}
	}
}

// requestPoll asks Run for an immediate poll.
func (s *Session) requestPoll() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Poll runs one poll. A call made while another poll is in flight returns
// at once and the running poll is repeated when it finishes.
func (s *Session) Poll(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.again = true
		s.mu.Unlock()
		return nil
	}
	s.inFlight = true
	s.mu.Unlock()

	for {
		err := s.pollOnce(ctx)

		s.mu.Lock()
		if !s.again || ctx.Err() != nil {
			s.inFlight = false
			s.again = false
			s.mu.Unlock()
			return err
		}
		s.again = false
		s.mu.Unlock()
	}
}

func (s *Session) pollOnce(ctx context.Context) error {
	s.mu.Lock()
	params := client.PollParams{
		RoomCode:      s.cfg.RoomCode,
		UserId:        s.cfg.UserId,
		LastMessageId: s.cursor,
		Since:         s.since,
	}
	resync := s.resync
	if resync {
		// full snapshot of recent messages; since is kept so deletions
		// made while the local copy was untrusted still arrive as removedIds
		params.LastMessageId = ""
		s.resync = false
	}
	s.mu.Unlock()

	resp, err := s.api.Poll(ctx, params)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if resync {
			s.resync = true
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		s.failures++
		if s.failures >= s.cfg.FailureThreshold && s.connected {
			s.log.Printf("poll: %d consecutive failures, marking disconnected: %v", s.failures, err)
			s.connected = false
			s.publishLocked()
		}
		return err
	}

	s.failures = 0
	s.connected = true
	s.loading = false
	s.applyPollLocked(resp)
	s.publishLocked()

	return nil
}

// SendMessage posts a message, merges the stored copy and asks for an
// immediate poll.
func (s *Session) SendMessage(ctx context.Context, content string, msgType types.MessageType) (types.Message, error) {
	msg, err := s.api.SendMessage(ctx, types.SendMessageRequest{
		RoomCode: s.cfg.RoomCode,
		UserId:   s.cfg.UserId,
		Username: s.cfg.Username,
		Content:  content,
		Type:     msgType,
	})
	if err != nil {
		return types.Message{}, err
	}

	s.mu.Lock()
	s.mergeLocked(*msg, true)
	s.publishLocked()
	s.mu.Unlock()

	s.typing.reset()
	s.requestPoll()
	return *msg, nil
}

// EditMessage applies the new content locally, then confirms it with the
// server. A failed edit is corrected by a full resync.
func (s *Session) EditMessage(ctx context.Context, messageId, content string) (types.Message, error) {
	s.mu.Lock()
	if m, ok := s.messages[messageId]; ok {
		editedAt := s.now().UTC()
		m.Content = content
		m.EditedAt = &editedAt
		s.messages[messageId] = m
	}
	s.pending[messageId]++
	s.publishLocked()
	s.mu.Unlock()

	msg, err := s.api.EditMessage(ctx, types.EditMessageRequest{
		MessageId: messageId,
		UserId:    s.cfg.UserId,
		Content:   content,
	})

	s.mu.Lock()
	s.donePendingLocked(messageId)
	if err != nil {
		s.markStaleLocked(messageId)
		s.mu.Unlock()
		s.requestPoll()
		return types.Message{}, err
	}
	s.mergeLocked(*msg, true)
	s.publishLocked()
	s.mu.Unlock()

	return *msg, nil
}

// DeleteMessage removes one of the user's messages on the server and locally.
func (s *Session) DeleteMessage(ctx context.Context, messageId string) error {
	if err := s.api.DeleteMessage(ctx, messageId, s.cfg.UserId); err != nil {
		return err
	}

	s.mu.Lock()
	s.removeLocked(messageId)
	s.publishLocked()
	s.mu.Unlock()

	return nil
}

// ReactToMessage toggles the reaction locally before the request is sent.
// When the request fails the next poll is a full resync.
func (s *Session) ReactToMessage(ctx context.Context, messageId, emoji string) error {
	s.mu.Lock()
	if m, ok := s.messages[messageId]; ok {
		m.Reactions = toggleReaction(m.Reactions, emoji, s.cfg.UserId)
		s.messages[messageId] = m
	}
	s.pending[messageId]++
	s.publishLocked()
	s.mu.Unlock()

	resp, err := s.api.ToggleReaction(ctx, types.ReactionRequest{
		MessageId: messageId,
		UserId:    s.cfg.UserId,
		Username:  s.cfg.Username,
		Emoji:     emoji,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.donePendingLocked(messageId)

	if err != nil {
		s.log.Printf("react: %v", err)
		s.markStaleLocked(messageId)
		s.requestPoll()
		return err
	}

	if m, ok := s.messages[messageId]; ok && s.pending[messageId] == 0 {
		m.Reactions = resp.Reactions
		// poll copies stamped before the toggle must not win over the ack
		if resp.UpdatedAt.After(m.UpdatedAt) {
			m.UpdatedAt = resp.UpdatedAt
		}
		s.messages[messageId] = m
		s.publishLocked()
	}
	return nil
}

// ClipMessage saves a message on the server and, when a library is
// configured, as a local snapshot.
func (s *Session) ClipMessage(ctx context.Context, messageId string) (types.Clip, error) {
	clip, err := s.api.ClipMessage(ctx, types.ClipRequest{
		UserId:    s.cfg.UserId,
		MessageId: messageId,
		RoomCode:  s.cfg.RoomCode,
	})
	if err != nil {
		return types.Clip{}, err
	}

	if s.cfg.Clips != nil {
		if _, err := s.cfg.Clips.Add(*clip); err != nil {
			return *clip, err
		}
	}
	return *clip, nil
}

// Keystroke reports local typing activity.
func (s *Session) Keystroke() {
	s.typing.keystroke()
}

// Close stops the session, clears typing and leaves the room.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closed.Do(func() {
		s.typing.stop(ctx)
		s.cancel()
		err = s.api.Leave(ctx, s.cfg.RoomCode, s.cfg.UserId)
	})
	return err
}
