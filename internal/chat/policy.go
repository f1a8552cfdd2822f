package chat

import "time"

const (
	RoomTTL          = 24 * time.Hour
	MessageTTL       = time.Hour
	DirectMessageTTL = 24 * time.Hour

	// TypingWindow is how long a typing indicator counts as current.
	TypingWindow = 5 * time.Second
	// DeleteWindow bounds how old a message may be when its owner deletes it.
	DeleteWindow = 60 * time.Second
	// PresenceWindow is how recently a member must have been seen to count
	// as online.
	PresenceWindow = 5 * time.Minute

	MaxPollMessages    = 50
	MaxDirectMessages  = 50
	MaxContentLength   = 4000
	MaxRoomCodeLength  = 32
	DefaultRoomCreator = "system"

	// sinceOverlap widens the client's update watermark to cover writes that
	// committed just after the previous poll read.
	sinceOverlap = time.Second
)
