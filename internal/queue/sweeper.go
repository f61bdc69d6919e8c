package queue

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/infra"
	"mediagen/internal/pipeline"
)

type staleLister interface {
	ListStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	TouchStaleQueued(ctx context.Context, jobID string, olderThan, now time.Time) (bool, error)
}

// Sweeper re-triggers jobs left queued longer than staleAfter, so a dropped
// trigger does not strand a job.
type Sweeper struct {
	jobs       staleLister
	trigger    pipeline.Trigger
	interval   time.Duration
	staleAfter time.Duration
	batch      int
	logger     *infra.Logger
	now        func() time.Time
}

func NewSweeper(jobs staleLister, trigger pipeline.Trigger, interval, staleAfter time.Duration, logger *infra.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Sweeper{
		jobs:       jobs,
		trigger:    trigger,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      50,
		logger:     logger,
		now:        time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("queue: sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce triggers one batch of stale jobs and returns how many were
// triggered. Each job's updated_at is bumped first, so a job is re-triggered
// at most once per staleAfter window even with no consumer draining the queue.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.staleAfter)
	ids, err := s.jobs.ListStaleQueued(ctx, cutoff, s.batch)
	if err != nil {
		return 0, err
	}
	triggered := 0
	for _, id := range ids {
		touched, err := s.jobs.TouchStaleQueued(ctx, id, cutoff, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("queue: touch stale job failed")
			continue
		}
		if !touched {
			continue
		}
		if err := s.trigger.Trigger(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("job_id", id).Msg("queue: re-trigger failed")
			continue
		}
		triggered++
	}
	if triggered > 0 {
		s.logger.Info().Int("count", triggered).Msg("queue: re-triggered stale jobs")
	}
	return triggered, nil
}
