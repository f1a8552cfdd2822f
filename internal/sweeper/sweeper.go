// Package sweeper reclaims expired and abandoned rows. A sweep is stateless
// and every step is an idempotent delete, so overlapping or repeated sweeps
// are safe. Reads never depend on the sweeper having run.
package sweeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/npezzotti/go-echo/internal/chat"
	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/stats"
	"github.com/npezzotti/go-echo/pkg/types"
)

type Sweeper struct {
	repo   database.SweepRepository
	logger *log.Logger
	stats  stats.StatsProvider
	now    func() time.Time
}

func New(repo database.SweepRepository, logger *log.Logger, st stats.StatsProvider) *Sweeper {
	return &Sweeper{
		repo:   repo,
		logger: logger,
		stats:  st,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// sweep accumulates counts and step failures for one run.
type sweep struct {
	*Sweeper
	ctx    context.Context
	result types.CleanupResult
}

func (sw *sweep) step(name string, fn func() (int64, error), counter *int64) bool {
	n, err := fn()
	if err != nil {
		sw.logger.Printf("sweep: %s: %v", name, err)
		sw.result.Errors = append(sw.result.Errors, fmt.Sprintf("%s: %v", name, err))
		return false
	}
	*counter += n
	return true
}

// purgeRoom deletes a room's children in dependency order, then the room.
// Clips taken from the room are removed only when withClips is set and the
// room row was actually deleted, so a code re-created in the meantime keeps
// its clips. A failed step does not stop the later ones; rows it leaves
// behind are picked up as orphans on a later sweep.
func (sw *sweep) purgeRoom(room database.Room, withClips bool) bool {
	ctx := sw.ctx
	sw.step("delete reactions of room "+room.Code, func() (int64, error) {
		return sw.repo.DeleteRoomReactions(ctx, room.Id)
	}, &sw.result.Reactions)
	sw.step("delete messages of room "+room.Code, func() (int64, error) {
		return sw.repo.DeleteRoomMessages(ctx, room.Id)
	}, &sw.result.Messages)
	sw.step("delete users of room "+room.Code, func() (int64, error) {
		return sw.repo.DeleteRoomUsers(ctx, room.Id)
	}, &sw.result.RoomUsers)
	sw.step("delete typing of room "+room.Code, func() (int64, error) {
		return sw.repo.DeleteRoomTyping(ctx, room.Id)
	}, &sw.result.TypingIndicators)

	var deleted int64
	ok := sw.step("delete room "+room.Code, func() (int64, error) {
		return sw.repo.DeleteRoom(ctx, room.Id)
	}, &deleted)

	if !ok || deleted == 0 {
		return false
	}

	if withClips {
		sw.step("delete clips of room "+room.Code, func() (int64, error) {
			return sw.repo.DeleteClipsByRoomCode(ctx, room.Code)
		}, &sw.result.Clips)
	}

	return true
}

// Sweep runs one cleanup pass. It never fails as a whole: step errors are
// logged and reported in the result next to the counts of the steps that
// succeeded.
func (s *Sweeper) Sweep(ctx context.Context) types.CleanupResult {
	now := s.now()
	sw := &sweep{Sweeper: s, ctx: ctx}

	// abandoned: past the creation grace period with nobody online
	cutoff := now.Add(-chat.PresenceWindow)
	abandoned, err := s.repo.ListAbandonedRooms(ctx, cutoff, cutoff)
	if err != nil {
		s.logger.Printf("sweep: list abandoned rooms: %v", err)
		sw.result.Errors = append(sw.result.Errors, fmt.Sprintf("list abandoned rooms: %v", err))
	}
	for _, room := range abandoned {
		if sw.purgeRoom(room, false) {
			sw.result.InactiveRooms++
		}
	}

	expired, err := s.repo.ListExpiredRooms(ctx, now)
	if err != nil {
		s.logger.Printf("sweep: list expired rooms: %v", err)
		sw.result.Errors = append(sw.result.Errors, fmt.Sprintf("list expired rooms: %v", err))
	}
	for _, room := range expired {
		if sw.purgeRoom(room, true) {
			sw.result.ExpiredRooms++
		}
	}

	sw.step("delete expired reactions", func() (int64, error) {
		return s.repo.DeleteExpiredReactions(ctx, now)
	}, &sw.result.Reactions)
	sw.step("delete expired messages", func() (int64, error) {
		return s.repo.DeleteExpiredMessages(ctx, now)
	}, &sw.result.Messages)
	sw.step("delete expired direct messages", func() (int64, error) {
		return s.repo.DeleteExpiredDirectMessages(ctx, now)
	}, &sw.result.DirectMessages)
	sw.step("delete stale typing indicators", func() (int64, error) {
		return s.repo.DeleteStaleTyping(ctx, now.Add(-chat.TypingWindow))
	}, &sw.result.TypingIndicators)
	sw.step("mark stale presence offline", func() (int64, error) {
		return s.repo.MarkStaleRoomUsersOffline(ctx, cutoff)
	}, &sw.result.PresenceMarkedStale)
	sw.step("delete orphans", func() (int64, error) {
		return s.repo.DeleteOrphans(ctx)
	}, &sw.result.Orphans)

	sw.result.Timestamp = now.UnixMilli()

	total := sw.result.Total()
	s.stats.Incr(stats.SweepRuns)
	s.stats.Add(stats.SweepRowsDeleted, total)
	s.stats.Add(stats.SweepErrors, int64(len(sw.result.Errors)))

	if total > 0 || len(sw.result.Errors) > 0 {
		s.logger.Printf("sweep: %d rows (%d inactive rooms, %d expired rooms, %d messages), %d errors",
			total, sw.result.InactiveRooms, sw.result.ExpiredRooms, sw.result.Messages, len(sw.result.Errors))
	}

	return sw.result
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.logger.Printf("sweeper starting, interval %s", interval)
	s.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Println("sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
