// Package chat implements the room, presence, message and poll rules on top
// of a database.Repository. Expiry is enforced at read time by passing the
// service clock to every query; the sweeper only reclaims space.
package chat

import (
	"log"
	"time"

	"github.com/npezzotti/go-echo/internal/database"
	"github.com/npezzotti/go-echo/internal/stats"
)

type Service struct {
	repo   database.Repository
	logger *log.Logger
	stats  stats.StatsProvider
	now    func() time.Time
}

func NewService(repo database.Repository, logger *log.Logger, st stats.StatsProvider) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		stats:  st,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}
