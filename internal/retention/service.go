package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"vitals/internal/db"
)

type Service struct {
	repo  *db.Repository
	days  int
	sched cron.Schedule
	log   *slog.Logger
	now   func() time.Time
}

func NewService(repo *db.Repository, days int, scheduleExpr string, logger *slog.Logger) (*Service, error) {
	if days <= 0 {
		days = 30
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(scheduleExpr)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", scheduleExpr, err)
	}
	return &Service{repo: repo, days: days, sched: sched, log: logger, now: time.Now}, nil
}

func (s *Service) NextRun(from time.Time) time.Time {
	return s.sched.Next(from)
}

// Run prunes on the cron schedule until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	for {
		next := s.sched.Next(s.now())
		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			s.Prune(ctx)
		}
	}
}

// Prune deletes samples and alerts older than the retention window.
// Failures are logged, never fatal to the loop.
func (s *Service) Prune(ctx context.Context) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.days)
	samples, alerts, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error("retention cleanup failed", "err", err)
		return
	}
	s.log.Info("retention cleanup completed", "cutoff", cutoff, "samples_deleted", samples, "alerts_deleted", alerts)
}
