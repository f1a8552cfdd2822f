// Package ids generates the identifiers stored by the chat backend.
//
// Message ids must compare monotonically as strings so that clients can use
// the id of the last message they saw as a poll cursor. UUIDv7 values are
// prefixed by a millisecond timestamp and the generator is monotonic within
// the process, so their canonical string form sorts by creation order.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

const (
	RoomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	RoomCodeLength   = 6
)

// NewMessageId returns a time-ordered message id.
func NewMessageId() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("new v7 uuid: %w", err)
	}
	return id.String(), nil
}

// NewId returns a short opaque id for rows that are never used as cursors.
func NewId() (string, error) {
	return shortid.Generate()
}

// NewRoomCode returns a random human-enterable room code.
func NewRoomCode() (string, error) {
	max := big.NewInt(int64(len(RoomCodeAlphabet)))
	code := make([]byte, RoomCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		code[i] = RoomCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
