package chat

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/ids"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/pkg/types"
)

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return required("content")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return invalid("content", "must be at most 4000 characters")
	}
	return nil
}

type SendMessageParams struct {
	RoomCode string
	UserId   string
	Username string
	Content  string
	Type     types.MessageType
}

func (s *Service) SendMessage(ctx context.Context, params SendMessageParams) (types.Message, error) {
	if params.UserId == "" {
		return types.Message{}, required("userId")
	}
	if strings.TrimSpace(params.Username) == "" {
		return types.Message{}, required("username")
	}
	if err := validateContent(params.Content); err != nil {
		return types.Message{}, err
	}
	if params.Type == "" {
		params.Type = types.MessageTypeText
	}
	if !params.Type.Valid() {
		return types.Message{}, invalid("type", "must be one of text, image, gif")
	}

	room, err := s.resolveRoom(ctx, params.RoomCode)
	if err != nil {
		return types.Message{}, err
	}

	id, err := ids.NewMessageId()
	if err != nil {
		return types.Message{}, err
	}

	now := s.now()
	msg := database.Message{
		Id:        id,
		RoomId:    room.Id,
		UserId:    params.UserId,
		Username:  params.Username,
		Content:   params.Content,
		Type:      string(params.Type),
		CreatedAt: now,
		ExpiresAt: now.Add(MessageTTL),
		UpdatedAt: now,
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return types.Message{}, storeErr("create message", err)
	}

	if _, err := s.heartbeat(ctx, room.Id, params.UserId, params.Username); err != nil {
		s.logger.Printf("send: presence for %s: %v", params.UserId, err)
	}

	s.stats.Incr(stats.MessagesSent)

	return toMessage(msg, nil), nil
}

// ListMessages returns up to limit of the most recent visible messages in an
// existing room, oldest first.
func (s *Service) ListMessages(ctx context.Context, roomCode string, limit int) ([]types.Message, error) {
	if limit <= 0 || limit > MaxPollMessages {
		limit = MaxPollMessages
	}

	code, err := NormalizeRoomCode(roomCode)
	if err != nil {
		return nil, err
	}

	now := s.now()
	room, err := s.repo.GetRoomByCode(ctx, code, now)
	if err != nil {
		return nil, storeErr("get room", err)
	}

	msgs, err := s.repo.ListRecentMessages(ctx, room.Id, now, limit)
	if err != nil {
		return nil, storeErr("list messages", err)
	}

	return s.withReactions(ctx, msgs)
}

type EditMessageParams struct {
	MessageId string
	UserId    string
	Content   string
}

// EditMessage replaces the content of a visible message owned by the caller.
func (s *Service) EditMessage(ctx context.Context, params EditMessageParams) (types.Message, error) {
	if params.MessageId == "" {
		return types.Message{}, required("messageId")
	}
	if params.UserId == "" {
		return types.Message{}, required("userId")
	}
	if err := validateContent(params.Content); err != nil {
		return types.Message{}, err
	}

	now := s.now()
	msg, err := s.repo.UpdateMessageContent(ctx, database.EditMessageParams{
		MessageId: params.MessageId,
		UserId:    params.UserId,
		Content:   params.Content,
		Now:       now,
	})
	if err != nil {
		if err = storeErr("edit message", err); !errors.Is(err, ErrNotFound) {
			return types.Message{}, err
		}
		// nothing matched: tell a missing message apart from someone else's
		if _, lookupErr := s.repo.GetMessage(ctx, params.MessageId, now); lookupErr == nil {
			return types.Message{}, ErrForbidden
		} else if lookupErr = storeErr("get message", lookupErr); !errors.Is(lookupErr, ErrNotFound) {
			return types.Message{}, lookupErr
		}
		return types.Message{}, err
	}

	messages, err := s.withReactions(ctx, []database.Message{msg})
	if err != nil {
		return types.Message{}, err
	}

	return messages[0], nil
}

// DeleteMessage soft-deletes a message. Only the owner may delete it and only
// while it is younger than DeleteWindow.
func (s *Service) DeleteMessage(ctx context.Context, messageId, userId string) error {
	if messageId == "" {
		return required("messageId")
	}
	if userId == "" {
		return required("userId")
	}

	now := s.now()
	msg, err := s.repo.GetMessage(ctx, messageId, now)
	if err != nil {
		return storeErr("get message", err)
	}

	if msg.UserId != userId {
		return ErrForbidden
	}

	createdAfter := now.Add(-DeleteWindow)
	if !msg.CreatedAt.After(createdAfter) {
		return ErrForbidden
	}

	err = s.repo.SoftDeleteMessage(ctx, database.SoftDeleteMessageParams{
		MessageId:    messageId,
		UserId:       userId,
		CreatedAfter: createdAfter,
		Now:          now,
	})
	if err != nil {
		return storeErr("delete message", err)
	}

	return nil
}

type TypingParams struct {
	RoomCode string
	UserId   string
	Username string
	IsTyping bool
}

// SetTyping records or clears the caller's typing indicator. Repeated calls
// refresh the single indicator row.
func (s *Service) SetTyping(ctx context.Context, params TypingParams) error {
	if params.UserId == "" {
		return required("userId")
	}
	if params.IsTyping && strings.TrimSpace(params.Username) == "" {
		return required("username")
	}

	room, err := s.resolveRoom(ctx, params.RoomCode)
	if err != nil {
		return err
	}

	if params.IsTyping {
		err = s.repo.UpsertTyping(ctx, database.TypingIndicator{
			RoomId:    room.Id,
			UserId:    params.UserId,
			Username:  params.Username,
			StartedAt: s.now(),
		})
	} else {
		err = s.repo.DeleteTyping(ctx, room.Id, params.UserId)
	}
	if err != nil {
		return storeErr("set typing", err)
	}

	return s.touch(ctx, room.Id, params.UserId)
}

type ReactionParams struct {
	MessageId string
	UserId    string
	Username  string
	Emoji     string
}

// ToggleReaction adds the reaction, or removes it when the user already
// reacted to the message with the same emoji.
func (s *Service) ToggleReaction(ctx context.Context, params ReactionParams) (types.ReactionResponse, error) {
	if params.MessageId == "" {
		return types.ReactionResponse{}, required("messageId")
	}
	if params.UserId == "" {
		return types.ReactionResponse{}, required("userId")
	}
	if strings.TrimSpace(params.Emoji) == "" {
		return types.ReactionResponse{}, required("emoji")
	}

	now := s.now()
	if _, err := s.repo.GetMessage(ctx, params.MessageId, now); err != nil {
		return types.ReactionResponse{}, storeErr("get message", err)
	}

	_, err := s.repo.ToggleReaction(ctx, database.Reaction{
		MessageId: params.MessageId,
		UserId:    params.UserId,
		Username:  params.Username,
		Emoji:     params.Emoji,
		CreatedAt: now,
	})
	if err != nil {
		return types.ReactionResponse{}, storeErr("toggle reaction", err)
	}

	all, err := s.GetReactions(ctx, []string{params.MessageId})
	if err != nil {
		return types.ReactionResponse{}, err
	}

	reactions := all[params.MessageId]
	if reactions == nil {
		reactions = make(types.Reactions)
	}

	return types.ReactionResponse{MessageId: params.MessageId, Reactions: reactions, UpdatedAt: now}, nil
}

func (s *Service) GetReactions(ctx context.Context, messageIds []string) (map[string]types.Reactions, error) {
	rows, err := s.repo.ListReactions(ctx, messageIds)
	if err != nil {
		return nil, storeErr("list reactions", err)
	}
	return aggregateReactions(rows), nil
}
