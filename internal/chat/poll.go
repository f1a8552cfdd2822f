package chat

import (
	"context"
	"sort"
	"time"

	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/pkg/types"
)

type PollParams struct {
	RoomCode      string
	UserId        string
	LastMessageId string
	// Since is the timestamp of the caller's previous poll response. When
	// set, edits, reaction changes and deletions after it are included.
	Since time.Time
}

// Poll returns the messages after the caller's cursor together with the
// room's current typing and online members. The room is created when it
// does not exist and the caller's presence is refreshed.
func (s *Service) Poll(ctx context.Context, params PollParams) (types.PollResponse, error) {
	if params.UserId == "" {
		return types.PollResponse{}, required("userId")
	}

	room, err := s.resolveRoom(ctx, params.RoomCode)
	if err != nil {
		return types.PollResponse{}, err
	}

	if err := s.touch(ctx, room.Id, params.UserId); err != nil {
		return types.PollResponse{}, err
	}

	now := s.now()

	var page []database.Message
	if params.LastMessageId == "" {
		page, err = s.repo.ListRecentMessages(ctx, room.Id, now, MaxPollMessages)
	} else {
		page, err = s.repo.ListMessagesAfter(ctx, room.Id, params.LastMessageId, now, MaxPollMessages)
	}
	if err != nil {
		return types.PollResponse{}, storeErr("list messages", err)
	}

	removedIds := make([]string, 0)
	if !params.Since.IsZero() {
		since := params.Since.Add(-sinceOverlap)

		updated, err := s.repo.ListUpdatedMessages(ctx, room.Id, since, now, MaxPollMessages)
		if err != nil {
			return types.PollResponse{}, storeErr("list updated messages", err)
		}
		page = mergeUpdated(page, updated, params.LastMessageId)

		removedIds, err = s.repo.ListDeletedMessageIds(ctx, room.Id, since)
		if err != nil {
			return types.PollResponse{}, storeErr("list deleted messages", err)
		}
	}

	messages, err := s.withReactions(ctx, page)
	if err != nil {
		return types.PollResponse{}, err
	}

	typing, err := s.repo.ListTyping(ctx, room.Id, now.Add(-TypingWindow))
	if err != nil {
		return types.PollResponse{}, storeErr("list typing", err)
	}

	typingUsers := make([]types.TypingUser, 0, len(typing))
	for _, t := range typing {
		if t.UserId == params.UserId {
			continue
		}
		typingUsers = append(typingUsers, types.TypingUser{
			UserId:    t.UserId,
			Username:  t.Username,
			StartedAt: t.StartedAt,
		})
	}

	online, err := s.repo.ListOnlineRoomUsers(ctx, room.Id, now.Add(-PresenceWindow))
	if err != nil {
		return types.PollResponse{}, storeErr("list online users", err)
	}

	onlineUsers := make([]types.User, 0, len(online))
	for _, u := range online {
		onlineUsers = append(onlineUsers, toUser(u))
	}

	s.stats.Incr(stats.Polls)

	return types.PollResponse{
		Messages:    messages,
		RemovedIds:  removedIds,
		TypingUsers: typingUsers,
		OnlineUsers: onlineUsers,
		Timestamp:   now.UnixMilli(),
	}, nil
}

// mergeUpdated adds already-delivered messages that changed since the last
// poll. Updates are limited to ids the caller has seen or is receiving in
// this page, so the caller's cursor never skips past undelivered messages.
func mergeUpdated(page, updated []database.Message, cursor string) []database.Message {
	upper := cursor
	if len(page) > 0 {
		upper = page[len(page)-1].Id
	}

	seen := make(map[string]bool, len(page))
	for _, m := range page {
		seen[m.Id] = true
	}

	for _, m := range updated {
		if seen[m.Id] || m.Id > upper {
			continue
		}
		seen[m.Id] = true
		page = append(page, m)
	}

	sort.Slice(page, func(i, j int) bool { return page[i].Id < page[j].Id })
	return page
}

func (s *Service) withReactions(ctx context.Context, msgs []database.Message) ([]types.Message, error) {
	messageIds := make([]string, 0, len(msgs))
	for _, m := range msgs {
		messageIds = append(messageIds, m.Id)
	}

	rows, err := s.repo.ListReactions(ctx, messageIds)
	if err != nil {
		return nil, storeErr("list reactions", err)
	}
	reactions := aggregateReactions(rows)

	out := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m, reactions[m.Id]))
	}

	return out, nil
}
