package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"chat-gateway/internal/observability"
)

// Job is one maintenance task. Run returns the number of rows it removed.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Scheduler runs its jobs on every tick of a cron expression.
type Scheduler struct {
	cron string
	jobs []Job
	log  *zap.Logger
}

func NewScheduler(cronExpr string, log *zap.Logger, jobs ...Job) (*Scheduler, error) {
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid cron expression: %q", cronExpr)
	}
	return &Scheduler{cron: cronExpr, jobs: jobs, log: log}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.cron, t, false)
}

// RunOnce runs every job in order. A failing job does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, job := range s.jobs {
		start := time.Now()
		removed, err := job.Run(ctx)
		if err != nil {
			s.log.Error("job failed", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		observability.AddCleanupRemoved(job.Name, removed)
		s.log.Info("job finished",
			zap.String("job", job.Name),
			zap.Int64("removed", removed),
			zap.Duration("took", time.Since(start)),
		)
	}
}

// Run sleeps until each tick and runs the jobs until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started", zap.String("cron", s.cron), zap.Int("jobs", len(s.jobs)))
	for {
		next, err := s.Next(time.Now().UTC())
		if err != nil {
			s.log.Error("next tick failed", zap.String("cron", s.cron), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("scheduler stopping")
			return
		}
	}
}
