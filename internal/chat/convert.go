package chat

import (
	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/pkg/types"
)

func toRoom(r database.Room) types.Room {
	return types.Room{
		Id:        r.Id,
		Code:      r.Code,
		CreatedBy: r.CreatedBy,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

func toUser(u database.RoomUser) types.User {
	return types.User{
		Id:       u.Id,
		RoomId:   u.RoomId,
		UserId:   u.UserId,
		Username: u.Username,
		JoinedAt: u.JoinedAt,
		LastSeen: u.LastSeen,
		IsOnline: u.IsOnline,
	}
}

func toMessage(m database.Message, reactions types.Reactions) types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		UserId:    m.UserId,
		Username:  m.Username,
		Content:   m.Content,
		Type:      types.MessageType(m.Type),
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
		EditedAt:  m.EditedAt,
		UpdatedAt: m.UpdatedAt,
		Reactions: reactions,
	}
}

func toDirectMessage(dm database.DirectMessage) types.DirectMessage {
	return types.DirectMessage{
		Id:           dm.Id,
		FromUserId:   dm.FromUserId,
		FromUsername: dm.FromUsername,
		ToUserId:     dm.ToUserId,
		ToUsername:   dm.ToUsername,
		Content:      dm.Content,
		CreatedAt:    dm.CreatedAt,
		ExpiresAt:    dm.ExpiresAt,
	}
}

func toClip(c database.Clip) types.Clip {
	return types.Clip{
		Id:               c.Id,
		UserId:           c.UserId,
		MessageId:        c.MessageId,
		MessageContent:   c.MessageContent,
		OriginalUsername: c.OriginalUsername,
		RoomCode:         c.RoomCode,
		MessageCreatedAt: c.MessageCreatedAt,
		ClippedAt:        c.ClippedAt,
	}
}

// aggregateReactions groups reaction rows into emoji -> user ids per message.
func aggregateReactions(rows []database.Reaction) map[string]types.Reactions {
	out := make(map[string]types.Reactions)
	for _, r := range rows {
		agg, ok := out[r.MessageId]
		if !ok {
			agg = make(types.Reactions)
			out[r.MessageId] = agg
		}
		agg[r.Emoji] = append(agg[r.Emoji], r.UserId)
	}
	return out
}
