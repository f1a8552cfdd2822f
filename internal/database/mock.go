package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, bool, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Room), args.Bool(1), args.Error(2)
}
func (m *MockRepository) GetRoomByCode(ctx context.Context, code string, now time.Time) (Room, error) {
	args := m.Called(ctx, code, now)
	return args.Get(0).(Room), args.Error(1)
}
func (m *MockRepository) UpsertRoomUser(ctx context.Context, params UpsertRoomUserParams) (RoomUser, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(RoomUser), args.Error(1)
}
func (m *MockRepository) TouchRoomUser(ctx context.Context, roomId, userId string, now time.Time) error {
	args := m.Called(ctx, roomId, userId, now)
	return args.Error(0)
}
func (m *MockRepository) SetRoomUserOffline(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) ListOnlineRoomUsers(ctx context.Context, roomId string, activeSince time.Time) ([]RoomUser, error) {
	args := m.Called(ctx, roomId, activeSince)
	return args.Get(0).([]RoomUser), args.Error(1)
}
func (m *MockRepository) CreateMessage(ctx context.Context, msg Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MockRepository) GetMessage(ctx context.Context, id string, now time.Time) (Message, error) {
	args := m.Called(ctx, id, now)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) ListRecentMessages(ctx context.Context, roomId string, now time.Time, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, now, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) ListMessagesAfter(ctx context.Context, roomId, afterId string, now time.Time, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, afterId, now, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) ListUpdatedMessages(ctx context.Context, roomId string, since, now time.Time, limit int) ([]Message, error) {
	args := m.Called(ctx, roomId, since, now, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) ListDeletedMessageIds(ctx context.Context, roomId string, since time.Time) ([]string, error) {
	args := m.Called(ctx, roomId, since)
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockRepository) UpdateMessageContent(ctx context.Context, params EditMessageParams) (Message, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) SoftDeleteMessage(ctx context.Context, params SoftDeleteMessageParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}
func (m *MockRepository) ToggleReaction(ctx context.Context, r Reaction) (bool, error) {
	args := m.Called(ctx, r)
	return args.Bool(0), args.Error(1)
}
func (m *MockRepository) ListReactions(ctx context.Context, messageIds []string) ([]Reaction, error) {
	args := m.Called(ctx, messageIds)
	return args.Get(0).([]Reaction), args.Error(1)
}
func (m *MockRepository) UpsertTyping(ctx context.Context, t TypingIndicator) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}
func (m *MockRepository) DeleteTyping(ctx context.Context, roomId, userId string) error {
	args := m.Called(ctx, roomId, userId)
	return args.Error(0)
}
func (m *MockRepository) ListTyping(ctx context.Context, roomId string, since time.Time) ([]TypingIndicator, error) {
	args := m.Called(ctx, roomId, since)
	return args.Get(0).([]TypingIndicator), args.Error(1)
}
func (m *MockRepository) CreateDirectMessage(ctx context.Context, dm DirectMessage) error {
	args := m.Called(ctx, dm)
	return args.Error(0)
}
func (m *MockRepository) ListDirectMessages(ctx context.Context, userId string, now time.Time, limit int) ([]DirectMessage, error) {
	args := m.Called(ctx, userId, now, limit)
	return args.Get(0).([]DirectMessage), args.Error(1)
}
func (m *MockRepository) CreateClip(ctx context.Context, c Clip) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}
func (m *MockRepository) ListClips(ctx context.Context, userId string) ([]Clip, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).([]Clip), args.Error(1)
}
func (m *MockRepository) ListAbandonedRooms(ctx context.Context, activeSince, createdBefore time.Time) ([]Room, error) {
	args := m.Called(ctx, activeSince, createdBefore)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRepository) ListExpiredRooms(ctx context.Context, now time.Time) ([]Room, error) {
	args := m.Called(ctx, now)
	return args.Get(0).([]Room), args.Error(1)
}
func (m *MockRepository) DeleteRoomReactions(ctx context.Context, roomId string) (int64, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteRoomMessages(ctx context.Context, roomId string) (int64, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteRoomUsers(ctx context.Context, roomId string) (int64, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteRoomTyping(ctx context.Context, roomId string) (int64, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteRoom(ctx context.Context, roomId string) (int64, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteClipsByRoomCode(ctx context.Context, code string) (int64, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteExpiredReactions(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteExpiredDirectMessages(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteStaleTyping(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) MarkStaleRoomUsersOffline(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) DeleteOrphans(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
