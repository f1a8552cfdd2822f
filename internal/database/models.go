package database

import "time"

type Room struct {
	Id        string
	Code      string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type RoomUser struct {
	Id       string
	RoomId   string
	UserId   string
	Username string
	JoinedAt time.Time
	LastSeen time.Time
	IsOnline bool
}

type Message struct {
	Id        string
	RoomId    string
	UserId    string
	Username  string
	Content   string
	Type      string
	CreatedAt time.Time
	ExpiresAt time.Time
	EditedAt  *time.Time
	UpdatedAt time.Time
	IsDeleted bool
}

type Reaction struct {
	MessageId string
	UserId    string
	Username  string
	Emoji     string
	CreatedAt time.Time
}

type TypingIndicator struct {
	RoomId    string
	UserId    string
	Username  string
	StartedAt time.Time
}

type DirectMessage struct {
	Id           string
	FromUserId   string
	FromUsername string
	ToUserId     string
	ToUsername   string
	Content      string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

type Clip struct {
	Id               string
	UserId           string
	MessageId        string
	MessageContent   string
	OriginalUsername string
	RoomCode         string
	MessageCreatedAt time.Time
	ClippedAt        time.Time
}

type CreateRoomParams struct {
	Id        string
	Code      string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type UpsertRoomUserParams struct {
	Id       string
	RoomId   string
	UserId   string
	Username string
	Now      time.Time
}

type EditMessageParams struct {
	MessageId string
	UserId    string
	Content   string
	Now       time.Time
}

type SoftDeleteMessageParams struct {
	MessageId string
	UserId    string
	// CreatedAfter is the oldest creation time that may still be deleted.
	CreatedAfter time.Time
	Now          time.Time
}
