package chat

import (
	"context"
	"strings"

	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/ids"
	"github.com/npezzotti/go-echo/pkg/types"
)

type DirectMessageParams struct {
	FromUserId   string
	FromUsername string
	ToUserId     string
	ToUsername   string
	Content      string
}

func (s *Service) SendDirectMessage(ctx context.Context, params DirectMessageParams) (types.DirectMessage, error) {
	if params.FromUserId == "" {
		return types.DirectMessage{}, required("fromUserId")
	}
	if params.ToUserId == "" {
		return types.DirectMessage{}, required("toUserId")
	}
	if strings.TrimSpace(params.FromUsername) == "" {
		return types.DirectMessage{}, required("fromUsername")
	}
	if err := validateContent(params.Content); err != nil {
		return types.DirectMessage{}, err
	}

	id, err := ids.NewMessageId()
	if err != nil {
		return types.DirectMessage{}, err
	}

	now := s.now()
	dm := database.DirectMessage{
		Id:           id,
		FromUserId:   params.FromUserId,
		FromUsername: params.FromUsername,
		ToUserId:     params.ToUserId,
		ToUsername:   params.ToUsername,
		Content:      params.Content,
		CreatedAt:    now,
		ExpiresAt:    now.Add(DirectMessageTTL),
	}
	if err := s.repo.CreateDirectMessage(ctx, dm); err != nil {
		return types.DirectMessage{}, storeErr("create direct message", err)
	}

	return toDirectMessage(dm), nil
}

// ListDirectMessages returns the live direct messages sent or received by
// userId, newest first.
func (s *Service) ListDirectMessages(ctx context.Context, userId string) ([]types.DirectMessage, error) {
	if userId == "" {
		return nil, required("userId")
	}

	rows, err := s.repo.ListDirectMessages(ctx, userId, s.now(), MaxDirectMessages)
	if err != nil {
		return nil, storeErr("list direct messages", err)
	}

	out := make([]types.DirectMessage, 0, len(rows))
	for _, dm := range rows {
		out = append(out, toDirectMessage(dm))
	}

	return out, nil
}

type ClipParams struct {
	UserId    string
	MessageId string
	RoomCode  string
}

// ClipMessage stores a snapshot of a visible message for the user. Clips are
// removed together with the room they were taken from.
func (s *Service) ClipMessage(ctx context.Context, params ClipParams) (types.Clip, error) {
	if params.UserId == "" {
		return types.Clip{}, required("userId")
	}
	if params.MessageId == "" {
		return types.Clip{}, required("messageId")
	}

	code, err := NormalizeRoomCode(params.RoomCode)
	if err != nil {
		return types.Clip{}, err
	}

	now := s.now()
	room, err := s.repo.GetRoomByCode(ctx, code, now)
	if err != nil {
		return types.Clip{}, storeErr("get room", err)
	}

	msg, err := s.repo.GetMessage(ctx, params.MessageId, now)
	if err != nil {
		return types.Clip{}, storeErr("get message", err)
	}
	if msg.RoomId != room.Id {
		return types.Clip{}, ErrNotFound
	}

	id, err := ids.NewId()
	if err != nil {
		return types.Clip{}, err
	}

	clip := database.Clip{
		Id:               id,
		UserId:           params.UserId,
		MessageId:        msg.Id,
		MessageContent:   msg.Content,
		OriginalUsername: msg.Username,
		RoomCode:         room.Code,
		MessageCreatedAt: msg.CreatedAt,
		ClippedAt:        now,
	}
	if err := s.repo.CreateClip(ctx, clip); err != nil {
		return types.Clip{}, storeErr("create clip", err)
	}

	return toClip(clip), nil
}

func (s *Service) ListClips(ctx context.Context, userId string) ([]types.Clip, error) {
	if userId == "" {
		return nil, required("userId")
	}

	rows, err := s.repo.ListClips(ctx, userId)
	if err != nil {
		return nil, storeErr("list clips", err)
	}

	out := make([]types.Clip, 0, len(rows))
	for _, c := range rows {
		out = append(out, toClip(c))
	}

	return out, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}
