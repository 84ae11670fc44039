package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"parkwise/internal/auth"
	"parkwise/internal/logger"
)

// JobService holds the periodic housekeeping run by cron.
type JobService struct {
	pages    *PageService
	sessions *auth.Manager
	idle     time.Duration
	timeout  time.Duration
	log      *logger.Logger
}

func NewJobService(pages *PageService, sessions *auth.Manager, idle time.Duration, log *logger.Logger) *JobService {
	return &JobService{
		pages:    pages,
		sessions: sessions,
		idle:     idle,
		timeout:  30 * time.Second,
		log:      log,
	}
}

// SweepIdlePages closes lot pages nobody has used for the idle timeout.
func (s *JobService) SweepIdlePages() int {
	n := s.pages.SweepIdle(s.idle)
	if n > 0 {
		s.log.Info("Cron Job: closed idle pages", "count", n, "open", s.pages.Count())
	}
	return n
}

// PurgeExpiredSessions drops expired sessions from memory and storage.
func (s *JobService) PurgeExpiredSessions() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.sessions.Purge(ctx)
	if err != nil {
		return fmt.Errorf("cron job: failed to purge expired sessions: %w", err)
	}
	if n > 0 {
		s.log.Info("Cron Job: purged expired sessions", "count", n)
	}
	return nil
}

// Schedule registers both jobs on c.
func (s *JobService) Schedule(c *cron.Cron, sweepSpec, purgeSpec string) error {
	if _, err := c.AddFunc(sweepSpec, func() { s.SweepIdlePages() }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", sweepSpec, err)
	}
	if _, err := c.AddFunc(purgeSpec, func() {
		if err := s.PurgeExpiredSessions(); err != nil {
			s.log.Error("Cron Job: session purge failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid session purge schedule %q: %w", purgeSpec, err)
	}
	return nil
}
