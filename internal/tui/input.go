package tui

import (
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-echo/pkg/types"
)

// maxInputLen matches the server's content limit.
const maxInputLen = 4000

// editRune applies a keystroke to an inline text input. It handles
// backspace and single printable characters and ignores everything else.
func editRune(text string, key string) string {
	switch key {
	case "backspace":
		if len(text) > 0 {
			runes := []rune(text)
			return string(runes[:len(runes)-1])
		}
		return text
	case "space":
		key = " "
	}

	if utf8.RuneCountInString(key) != 1 {
		return text
	}
	if utf8.RuneCountInString(text) >= maxInputLen {
		return text
	}
	return text + key
}

// parseInput splits "/gif url" and "/img url" into a media message. Anything
// else is sent as text.
func parseInput(input string) (string, types.MessageType) {
	switch {
	case strings.HasPrefix(input, "/gif "):
		return strings.TrimSpace(strings.TrimPrefix(input, "/gif ")), types.MessageTypeGif
	case strings.HasPrefix(input, "/img "):
		return strings.TrimSpace(strings.TrimPrefix(input, "/img ")), types.MessageTypeImage
	default:
		return input, types.MessageTypeText
	}
}

func truncStr(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}
