package poller

import (
	"slices"
	"sort"

	"github.com/npezzotti/go-echo/pkg/types"
)

func (s *Session) applyPollLocked(resp *types.PollResponse) {
	for _, id := range resp.RemovedIds {
		s.removeLocked(id)
	}

	for _, m := range resp.Messages {
		s.mergeLocked(m, false)
		// the cursor only moves forward, deltas for older ids never move it
		if m.Id > s.cursor {
			s.cursor = m.Id
		}
	}

	s.typingUsers = resp.TypingUsers
	s.onlineUsers = resp.OnlineUsers
	if resp.Timestamp > s.since {
		s.since = resp.Timestamp
	}

	s.pruneExpiredLocked()
}

// mergeLocked folds m into the local set. Poll results replace a known
// message only when the server copy is newer and no local mutation of it is
// pending. Acknowledgements of the user's own writes replace it unless they
// are older.
func (s *Session) mergeLocked(m types.Message, ack bool) {
	if _, gone := s.removed[m.Id]; gone {
		return
	}

	existing, ok := s.messages[m.Id]
	switch {
	case !ok:
		s.messages[m.Id] = m
	case s.isStaleLocked(m.Id) && !ack:
		delete(s.stale, m.Id)
		s.messages[m.Id] = m
	case ack:
		if !m.UpdatedAt.Before(existing.UpdatedAt) {
			s.messages[m.Id] = m
		}
	case s.pending[m.Id] > 0:
	case m.UpdatedAt.After(existing.UpdatedAt):
		s.messages[m.Id] = m
	}
}

func (s *Session) removeLocked(id string) {
	delete(s.messages, id)
	delete(s.pending, id)
	delete(s.stale, id)
	s.removed[id] = struct{}{}
}

func (s *Session) donePendingLocked(id string) {
	if s.pending[id] <= 1 {
		delete(s.pending, id)
		return
	}
	s.pending[id]--
}

// markStaleLocked drops trust in the local copy of id: the next poll is a
// full snapshot and its copy of id wins regardless of timestamps.
func (s *Session) markStaleLocked(id string) {
	s.stale[id] = struct{}{}
	s.resync = true
}

func (s *Session) isStaleLocked(id string) bool {
	_, ok := s.stale[id]
	return ok
}

// pruneExpiredLocked drops messages whose TTL elapsed locally, even when the
// server has not been asked again.
func (s *Session) pruneExpiredLocked() {
	now := s.now()
	for id, m := range s.messages {
		if !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt) {
			delete(s.messages, id)
		}
	}
}

func sortedMessages(messages map[string]types.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out
}

// toggleReaction returns a copy of r with userId added to or removed from
// emoji.
func toggleReaction(r types.Reactions, emoji, userId string) types.Reactions {
	out := make(types.Reactions, len(r)+1)
	for e, users := range r {
		out[e] = slices.Clone(users)
	}

	users := out[emoji]
	if i := slices.Index(users, userId); i >= 0 {
		users = slices.Delete(users, i, i+1)
	} else {
		users = append(users, userId)
	}

	if len(users) == 0 {
		delete(out, emoji)
	} else {
		out[emoji] = users
	}
	return out
}
