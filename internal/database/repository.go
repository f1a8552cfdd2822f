package database

import (
	"context"
	"time"
)

// RoomRepository stores rooms and their presence rows.
type RoomRepository interface {
	// CreateRoom inserts a room unless a non-expired room already holds the
	// code, in which case the existing room is returned and created is false.
	CreateRoom(ctx context.Context, params CreateRoomParams) (room Room, created bool, err error)
	GetRoomByCode(ctx context.Context, code string, now time.Time) (Room, error)
	UpsertRoomUser(ctx context.Context, params UpsertRoomUserParams) (RoomUser, error)
	TouchRoomUser(ctx context.Context, roomId, userId string, now time.Time) error
	SetRoomUserOffline(ctx context.Context, roomId, userId string) error
	ListOnlineRoomUsers(ctx context.Context, roomId string, activeSince time.Time) ([]RoomUser, error)
}

// MessageRepository stores room messages, reactions, typing indicators,
// direct messages and clips. Reads never return rows past their expiry.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg Message) error
	GetMessage(ctx context.Context, id string, now time.Time) (Message, error)
	ListRecentMessages(ctx context.Context, roomId string, now time.Time, limit int) ([]Message, error)
	ListMessagesAfter(ctx context.Context, roomId, afterId string, now time.Time, limit int) ([]Message, error)
	ListUpdatedMessages(ctx context.Context, roomId string, since, now time.Time, limit int) ([]Message, error)
	ListDeletedMessageIds(ctx context.Context, roomId string, since time.Time) ([]string, error)
	UpdateMessageContent(ctx context.Context, params EditMessageParams) (Message, error)
	SoftDeleteMessage(ctx context.Context, params SoftDeleteMessageParams) error

	ToggleReaction(ctx context.Context, r Reaction) (added bool, err error)
	ListReactions(ctx context.Context, messageIds []string) ([]Reaction, error)

	UpsertTyping(ctx context.Context, t TypingIndicator) error
	DeleteTyping(ctx context.Context, roomId, userId string) error
	ListTyping(ctx context.Context, roomId string, since time.Time) ([]TypingIndicator, error)

	CreateDirectMessage(ctx context.Context, dm DirectMessage) error
	ListDirectMessages(ctx context.Context, userId string, now time.Time, limit int) ([]DirectMessage, error)

	CreateClip(ctx context.Context, c Clip) error
	ListClips(ctx context.Context, userId string) ([]Clip, error)
}

// SweepRepository holds the deletions run by the cleanup sweeper. Every
// method is idempotent and returns the number of affected rows.
type SweepRepository interface {
	ListAbandonedRooms(ctx context.Context, activeSince, createdBefore time.Time) ([]Room, error)
	ListExpiredRooms(ctx context.Context, now time.Time) ([]Room, error)
	DeleteRoomReactions(ctx context.Context, roomId string) (int64, error)
	DeleteRoomMessages(ctx context.Context, roomId string) (int64, error)
	DeleteRoomUsers(ctx context.Context, roomId string) (int64, error)
	DeleteRoomTyping(ctx context.Context, roomId string) (int64, error)
	DeleteRoom(ctx context.Context, roomId string) (int64, error)
	DeleteClipsByRoomCode(ctx context.Context, code string) (int64, error)
	DeleteExpiredReactions(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredMessages(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredDirectMessages(ctx context.Context, now time.Time) (int64, error)
	DeleteStaleTyping(ctx context.Context, before time.Time) (int64, error)
	MarkStaleRoomUsersOffline(ctx context.Context, before time.Time) (int64, error)
	DeleteOrphans(ctx context.Context) (int64, error)
}

type Repository interface {
	Ping(ctx context.Context) error
	Close() error
	RoomRepository
	MessageRepository
	SweepRepository
}
