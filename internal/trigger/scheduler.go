// Package trigger implements the cron-driven bootstrap refresh loop.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/moshesimon/OpenWork-sub000/internal/turn"
)

// DefaultCron fires the bootstrap scan once a minute; the per-user
// staleness check inside the runner decides whether anything actually runs.
const DefaultCron = "* * * * *"

const scanTimeout = 5 * time.Minute

// ActiveUserLookback bounds the scan to users with recent workspace
// activity.
const ActiveUserLookback = 24 * time.Hour

// BootstrapRunner runs the staleness-gated bootstrap turn for one user; a
// nil outcome means the user was fresh or had nothing to analyze.
type BootstrapRunner interface {
	MaybeRunBootstrapAnalysis(ctx context.Context, userID string, staleFor time.Duration) (*turn.Outcome, error)
}

// ActiveUserSource lists users with workspace activity since the given time.
type ActiveUserSource interface {
	ListRecentlyActiveUsers(ctx context.Context, since time.Time) ([]string, error)
}

// Scheduler periodically scans recently active users and offers each one a
// bootstrap refresh turn.
type Scheduler struct {
	cron     *cron.Cron
	runner   BootstrapRunner
	users    ActiveUserSource
	staleFor time.Duration
}

// NewScheduler creates the bootstrap scheduler. Cron expressions use the
// standard 5-field format: minute hour day-of-month month day-of-week.
func NewScheduler(runner BootstrapRunner, users ActiveUserSource, staleFor time.Duration) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		runner:   runner,
		users:    users,
		staleFor: staleFor,
	}
}

// Register adds the scan cron entry.
func (s *Scheduler) Register(cronExpr string) error {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	_, err := s.cron.AddFunc(cronExpr, s.scan)
	if err != nil {
		return fmt.Errorf("registering bootstrap cron %q: %w", cronExpr, err)
	}
	return nil
}

// Entries reports how many cron entries are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Start begins executing registered cron jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for a running scan to complete.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	userIDs, err := s.users.ListRecentlyActiveUsers(ctx, time.Now().Add(-ActiveUserLookback))
	if err != nil {
		log.Error().Err(err).Msg("bootstrap_scan_failed")
		return
	}

	for _, userID := range userIDs {
		outcome, err := s.runner.MaybeRunBootstrapAnalysis(ctx, userID, s.staleFor)
		if err != nil {
			log.Error().Err(err).
				Str("user_id", userID).
				Msg("bootstrap_refresh_failed")
			continue
		}
		if outcome != nil {
			log.Debug().
				Str("user_id", userID).
				Str("task_id", outcome.TaskID).
				Str("status", string(outcome.Status)).
				Msg("bootstrap_refresh_completed")
		}
	}
}
