package database

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"
)

type memberKey struct {
	roomId string
	userId string
}

type reactionKey struct {
	messageId string
	userId    string
	emoji     string
}

// MemoryRepository keeps every table in process memory. It follows the same
// visibility rules as the Postgres repository and is used for local runs
// and tests.
type MemoryRepository struct {
	mu        sync.RWMutex
	rooms     map[string]Room
	roomUsers map[memberKey]RoomUser
	messages  map[string]Message
	reactions map[reactionKey]Reaction
	typing    map[memberKey]TypingIndicator
	dms       map[string]DirectMessage
	clips     map[string]Clip
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:     make(map[string]Room),
		roomUsers: make(map[memberKey]RoomUser),
		messages:  make(map[string]Message),
		reactions: make(map[reactionKey]Reaction),
		typing:    make(map[memberKey]TypingIndicator),
		dms:       make(map[string]DirectMessage),
		clips:     make(map[string]Clip),
	}
}

func (m *MemoryRepository) Ping(ctx context.Context) error { return nil }

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) roomByCode(code string) (Room, bool) {
	for _, r := range m.rooms {
		if r.Code == code {
			return r, true
		}
	}
	return Room{}, false
}

func (m *MemoryRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.roomByCode(params.Code); ok {
		if existing.ExpiresAt.After(params.CreatedAt) {
			return existing, false, nil
		}
		delete(m.rooms, existing.Id)
	}

	room := Room{
		Id:        params.Id,
		Code:      params.Code,
		CreatedBy: params.CreatedBy,
		CreatedAt: params.CreatedAt,
		ExpiresAt: params.ExpiresAt,
	}
	m.rooms[room.Id] = room

	return room, true, nil
}

func (m *MemoryRepository) GetRoomByCode(ctx context.Context, code string, now time.Time) (Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.roomByCode(code)
	if !ok || !r.ExpiresAt.After(now) {
		return Room{}, sql.ErrNoRows
	}
	return r, nil
}

func (m *MemoryRepository) UpsertRoomUser(ctx context.Context, params UpsertRoomUserParams) (RoomUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memberKey{params.RoomId, params.UserId}
	u, ok := m.roomUsers[key]
	if !ok {
		u = RoomUser{
			Id:       params.Id,
			RoomId:   params.RoomId,
			UserId:   params.UserId,
			JoinedAt: params.Now,
		}
	}
	u.Username = params.Username
	u.LastSeen = params.Now
	u.IsOnline = true
	m.roomUsers[key] = u

	return u, nil
}

func (m *MemoryRepository) TouchRoomUser(ctx context.Context, roomId, userId string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memberKey{roomId, userId}
	if u, ok := m.roomUsers[key]; ok {
		u.LastSeen = now
		u.IsOnline = true
		m.roomUsers[key] = u
	}
	return nil
}

func (m *MemoryRepository) SetRoomUserOffline(ctx context.Context, roomId, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memberKey{roomId, userId}
	if u, ok := m.roomUsers[key]; ok {
		u.IsOnline = false
		m.roomUsers[key] = u
	}
	return nil
}

func (m *MemoryRepository) ListOnlineRoomUsers(ctx context.Context, roomId string, activeSince time.Time) ([]RoomUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]RoomUser, 0)
	for _, u := range m.roomUsers {
		if u.RoomId == roomId && u.IsOnline && !u.LastSeen.Before(activeSince) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].JoinedAt.Equal(users[j].JoinedAt) {
			return users[i].UserId < users[j].UserId
		}
		return users[i].JoinedAt.Before(users[j].JoinedAt)
	})

	return users, nil
}

func visible(msg Message, now time.Time) bool {
	return !msg.IsDeleted && msg.ExpiresAt.After(now)
}

func (m *MemoryRepository) CreateMessage(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[msg.Id] = msg
	return nil
}

func (m *MemoryRepository) GetMessage(ctx context.Context, id string, now time.Time) (Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok || !visible(msg, now) {
		return Message{}, sql.ErrNoRows
	}
	return msg, nil
}

func (m *MemoryRepository) filterMessages(keep func(Message) bool) []Message {
	out := make([]Message, 0)
	for _, msg := range m.messages {
		if keep(msg) {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

func (m *MemoryRepository) ListRecentMessages(ctx context.Context, roomId string, now time.Time, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.filterMessages(func(msg Message) bool {
		return msg.RoomId == roomId && visible(msg, now)
	})
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MemoryRepository) ListMessagesAfter(ctx context.Context, roomId, afterId string, now time.Time, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.filterMessages(func(msg Message) bool {
		return msg.RoomId == roomId && msg.Id > afterId && visible(msg, now)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListUpdatedMessages(ctx context.Context, roomId string, since, now time.Time, limit int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := m.filterMessages(func(msg Message) bool {
		return msg.RoomId == roomId && msg.UpdatedAt.After(since) && visible(msg, now)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListDeletedMessageIds(ctx context.Context, roomId string, since time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0)
	for _, msg := range m.filterMessages(func(msg Message) bool {
		return msg.RoomId == roomId && msg.IsDeleted && msg.UpdatedAt.After(since)
	}) {
		ids = append(ids, msg.Id)
	}
	return ids, nil
}

func (m *MemoryRepository) UpdateMessageContent(ctx context.Context, params EditMessageParams) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[params.MessageId]
	if !ok || msg.UserId != params.UserId || !visible(msg, params.Now) {
		return Message{}, sql.ErrNoRows
	}

	editedAt := params.Now
	msg.Content = params.Content
	msg.EditedAt = &editedAt
	msg.UpdatedAt = params.Now
	m.messages[msg.Id] = msg

	return msg, nil
}

func (m *MemoryRepository) SoftDeleteMessage(ctx context.Context, params SoftDeleteMessageParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[params.MessageId]
	if !ok || msg.UserId != params.UserId || !visible(msg, params.Now) || !msg.CreatedAt.After(params.CreatedAfter) {
		return sql.ErrNoRows
	}

	msg.IsDeleted = true
	msg.UpdatedAt = params.Now
	m.messages[msg.Id] = msg

	return nil
}

func (m *MemoryRepository) ToggleReaction(ctx context.Context, r Reaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := reactionKey{r.MessageId, r.UserId, r.Emoji}
	_, exists := m.reactions[key]
	if exists {
		delete(m.reactions, key)
	} else {
		m.reactions[key] = r
	}

	if msg, ok := m.messages[r.MessageId]; ok {
		msg.UpdatedAt = r.CreatedAt
		m.messages[msg.Id] = msg
	}

	return !exists, nil
}

func (m *MemoryRepository) ListReactions(ctx context.Context, messageIds []string) ([]Reaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(messageIds))
	for _, id := range messageIds {
		wanted[id] = true
	}

	out := make([]Reaction, 0)
	for _, r := range m.reactions {
		if wanted[r.MessageId] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserId < out[j].UserId
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}

func (m *MemoryRepository) UpsertTyping(ctx context.Context, t TypingIndicator) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.typing[memberKey{t.RoomId, t.UserId}] = t
	return nil
}

func (m *MemoryRepository) DeleteTyping(ctx context.Context, roomId, userId string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.typing, memberKey{roomId, userId})
	return nil
}

func (m *MemoryRepository) ListTyping(ctx context.Context, roomId string, since time.Time) ([]TypingIndicator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]TypingIndicator, 0)
	for _, t := range m.typing {
		if t.RoomId == roomId && !t.StartedAt.Before(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].UserId < out[j].UserId
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})

	return out, nil
}

func (m *MemoryRepository) CreateDirectMessage(ctx context.Context, dm DirectMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dms[dm.Id] = dm
	return nil
}

func (m *MemoryRepository) ListDirectMessages(ctx context.Context, userId string, now time.Time, limit int) ([]DirectMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DirectMessage, 0)
	for _, dm := range m.dms {
		if (dm.ToUserId == userId || dm.FromUserId == userId) && dm.ExpiresAt.After(now) {
			out = append(out, dm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Id > out[j].Id
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *MemoryRepository) CreateClip(ctx context.Context, c Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clips[c.Id] = c
	return nil
}

func (m *MemoryRepository) ListClips(ctx context.Context, userId string) ([]Clip, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Clip, 0)
	for _, c := range m.clips {
		if c.UserId == userId {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClippedAt.Equal(out[j].ClippedAt) {
			return out[i].Id > out[j].Id
		}
		return out[i].ClippedAt.After(out[j].ClippedAt)
	})

	return out, nil
}

func (m *MemoryRepository) ListAbandonedRooms(ctx context.Context, activeSince, createdBefore time.Time) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make(map[string]bool)
	for _, u := range m.roomUsers {
		if u.IsOnline && !u.LastSeen.Before(activeSince) {
			active[u.RoomId] = true
		}
	}

	out := make([]Room, 0)
	for _, r := range m.rooms {
		if r.CreatedAt.Before(createdBefore) && !active[r.Id] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	return out, nil
}

func (m *MemoryRepository) ListExpiredRooms(ctx context.Context, now time.Time) ([]Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Room, 0)
	for _, r := range m.rooms {
		if !r.ExpiresAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })

	return out, nil
}

func (m *MemoryRepository) deleteReactionsWhere(match func(msg Message, ok bool) bool) int64 {
	var n int64
	for key := range m.reactions {
		msg, ok := m.messages[key.messageId]
		if match(msg, ok) {
			delete(m.reactions, key)
			n++
		}
	}
	return n
}

func (m *MemoryRepository) DeleteRoomReactions(ctx context.Context, roomId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteReactionsWhere(func(msg Message, ok bool) bool {
		return ok && msg.RoomId == roomId
	}), nil
}

func (m *MemoryRepository) DeleteRoomMessages(ctx context.Context, roomId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, msg := range m.messages {
		if msg.RoomId == roomId {
			delete(m.messages, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteRoomUsers(ctx context.Context, roomId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key := range m.roomUsers {
		if key.roomId == roomId {
			delete(m.roomUsers, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteRoomTyping(ctx context.Context, roomId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key := range m.typing {
		if key.roomId == roomId {
			delete(m.typing, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteRoom(ctx context.Context, roomId string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomId]; !ok {
		return 0, nil
	}
	delete(m.rooms, roomId)
	return 1, nil
}

func (m *MemoryRepository) DeleteClipsByRoomCode(ctx context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, c := range m.clips {
		if c.RoomCode == code {
			delete(m.clips, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteExpiredReactions(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.deleteReactionsWhere(func(msg Message, ok bool) bool {
		return ok && !msg.ExpiresAt.After(now)
	}), nil
}

func (m *MemoryRepository) DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, msg := range m.messages {
		if !msg.ExpiresAt.After(now) {
			delete(m.messages, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteExpiredDirectMessages(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, dm := range m.dms {
		if !dm.ExpiresAt.After(now) {
			delete(m.dms, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteStaleTyping(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, t := range m.typing {
		if t.StartedAt.Before(before) {
			delete(m.typing, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) MarkStaleRoomUsersOffline(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key, u := range m.roomUsers {
		if u.IsOnline && u.LastSeen.Before(before) {
			u.IsOnline = false
			m.roomUsers[key] = u
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, msg := range m.messages {
		if _, ok := m.rooms[msg.RoomId]; !ok {
			delete(m.messages, id)
			n++
		}
	}
	n += m.deleteReactionsWhere(func(_ Message, ok bool) bool { return !ok })
	for key := range m.roomUsers {
		if _, ok := m.rooms[key.roomId]; !ok {
			delete(m.roomUsers, key)
			n++
		}
	}
	for key := range m.typing {
		if _, ok := m.rooms[key.roomId]; !ok {
			delete(m.typing, key)
			n++
		}
	}
	return n, nil
}
