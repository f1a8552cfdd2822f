package types

import (
	"time"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeGif   MessageType = "gif"
)

func (mt MessageType) Valid() bool {
	switch mt {
	case MessageTypeText, MessageTypeImage, MessageTypeGif:
		return true
	}
	return false
}

type Room struct {
	Id        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// User is a presence row as seen by clients.
type User struct {
	Id       string    `json:"id"`
	RoomId   string    `json:"room_id"`
	UserId   string    `json:"user_id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
	IsOnline bool      `json:"is_online"`
}

type TypingUser struct {
	UserId    string    `json:"user_id"`
	Username  string    `json:"username"`
	StartedAt time.Time `json:"started_at"`
}

// Reactions maps an emoji to the ids of the users who reacted with it.
type Reactions map[string][]string

type Message struct {
	Id        string      `json:"id"`
	RoomId    string      `json:"room_id"`
	UserId    string      `json:"user_id"`
	Username  string      `json:"username"`
	Content   string      `json:"content"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`
	EditedAt  *time.Time  `json:"edited_at,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
	Reactions Reactions   `json:"reactions,omitempty"`
}

type DirectMessage struct {
	Id           string    `json:"id"`
	FromUserId   string    `json:"from_user_id"`
	FromUsername string    `json:"from_username"`
	ToUserId     string    `json:"to_user_id"`
	ToUsername   string    `json:"to_username"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type Clip struct {
	Id               string    `json:"id"`
	UserId           string    `json:"user_id"`
	MessageId        string    `json:"message_id"`
	MessageContent   string    `json:"message_content"`
	OriginalUsername string    `json:"original_username"`
	RoomCode         string    `json:"room_code"`
	MessageCreatedAt time.Time `json:"message_created_at"`
	ClippedAt        time.Time `json:"clipped_at"`
}

type JoinResponse struct {
	Room Room `json:"room"`
	User User `json:"user"`
}

type PollResponse struct {
	Messages    []Message    `json:"messages"`
	RemovedIds  []string     `json:"removedIds"`
	TypingUsers []TypingUser `json:"typingUsers"`
	OnlineUsers []User       `json:"onlineUsers"`
	// Timestamp is the server clock in unix milliseconds; clients send it
	// back as "since" on the next poll.
	Timestamp int64 `json:"timestamp"`
}

// PeersResponse lists the signaling peers connected for a room.
type PeersResponse struct {
	RoomCode    string   `json:"roomCode"`
	ActiveUsers []string `json:"activeUsers"`
}

// ReactionResponse carries the message's reactions after a toggle and the
// updated_at the toggle stamped on it.
type ReactionResponse struct {
	MessageId string    `json:"messageId"`
	Reactions Reactions `json:"reactions"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CleanupResult struct {
	InactiveRooms       int      `json:"inactiveRooms"`
	ExpiredRooms        int      `json:"expiredRooms"`
	Reactions           int64    `json:"reactions"`
	Messages            int64    `json:"messages"`
	RoomUsers           int64    `json:"roomUsers"`
	TypingIndicators    int64    `json:"typingIndicators"`
	Clips               int64    `json:"clips"`
	DirectMessages      int64    `json:"directMessages"`
	PresenceMarkedStale int64    `json:"presenceMarkedStale"`
	Orphans             int64    `json:"orphans"`
	Errors              []string `json:"errors,omitempty"`
	Timestamp           int64    `json:"timestamp"`
}

// Total is the number of rows removed or updated by the sweep.
func (r CleanupResult) Total() int64 {
	return int64(r.InactiveRooms+r.ExpiredRooms) + r.Reactions + r.Messages + r.RoomUsers +
		r.TypingIndicators + r.Clips + r.DirectMessages + r.PresenceMarkedStale + r.Orphans
}

// Request bodies accepted by the HTTP API.

type CreateRoomRequest struct {
	Code      string `json:"code"`
	CreatedBy string `json:"createdBy"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type LeaveRoomRequest struct {
	RoomCode string `json:"roomCode"`
	UserId   string `json:"userId"`
}

type SendMessageRequest struct {
	RoomCode string      `json:"roomCode"`
	UserId   string      `json:"userId"`
	Username string      `json:"username"`
	Content  string      `json:"content"`
	Type     MessageType `json:"type"`
}

type EditMessageRequest struct {
	MessageId string `json:"messageId"`
	UserId    string `json:"userId"`
	Content   string `json:"content"`
}

type DeleteMessageRequest struct {
	MessageId string `json:"messageId"`
	UserId    string `json:"userId"`
}

type TypingRequest struct {
	RoomCode string `json:"roomCode"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type ReactionRequest struct {
	MessageId string `json:"messageId"`
	UserId    string `json:"userId"`
	Username  string `json:"username"`
	Emoji     string `json:"emoji"`
}

type DirectMessageRequest struct {
	FromUserId   string `json:"fromUserId"`
	FromUsername string `json:"fromUsername"`
	ToUserId     string `json:"toUserId"`
	ToUsername   string `json:"toUsername"`
	Content      string `json:"content"`
}

type ClipRequest struct {
	UserId    string `json:"userId"`
	MessageId string `json:"messageId"`
	RoomCode  string `json:"roomCode"`
}
