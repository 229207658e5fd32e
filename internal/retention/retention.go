// Package retention implements the background sweeper that deletes
// conversations older than the configured retention period.
//
// Core invariant: retention only removes whole conversations. Messages are
// never deleted individually, so surviving histories stay append-only.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/kazi/internal/agent"
	"github.com/jkaninda/kazi/internal/config"
)

// Sweeper periodically deletes conversations past their retention age.
// It runs as a background goroutine in serve mode.
type Sweeper struct {
	store  agent.ConversationStore
	config *config.RetentionConfig
	logger *slog.Logger
	parser cron.Parser

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Sweeper.
func New(store agent.ConversationStore, cfg *config.RetentionConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:  store,
		config: cfg,
		logger: logger,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		now:    time.Now,
	}
}

// Start begins the sweep loop. Returns a cancel function.
func (s *Sweeper) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	sched, err := s.parser.Parse(s.config.CronSchedule())
	if err != nil {
		s.logger.Error("invalid retention schedule, sweeper disabled",
			slog.String("schedule", s.config.CronSchedule()),
			slog.String("error", err.Error()),
		)
		return cancel
	}

	go func() {
		s.logger.InfoContext(ctx, "retention sweeper started",
			slog.String("schedule", s.config.CronSchedule()),
			slog.String("max_age", s.config.MaxAge().String()),
		)

		for {
			next := sched.Next(s.now().UTC())
			timer := time.NewTimer(time.Until(next))

			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info("retention sweeper stopped")
				return
			case <-timer.C:
				s.Sweep(ctx)
			}
		}
	}()

	return cancel
}

// Sweep runs a single retention pass and returns the number of
// conversations deleted.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	start := s.now()
	cutoff := start.UTC().Add(-s.config.MaxAge())

	deleted, err := s.store.DeleteConversationsBefore(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed",
			slog.String("error", err.Error()),
		)
		return 0
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "retention sweep completed",
			slog.Int64("conversations_deleted", deleted),
			slog.String("cutoff", cutoff.Format(time.RFC3339)),
			slog.String("duration", time.Since(start).String()),
		)
	}
	return deleted
}
