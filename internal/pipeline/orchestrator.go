package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers/generation"
	"mediagen/internal/transcode"
)

// errSettled ends processing without writes: the job reached a terminal
// state through another path while the worker was waiting.
var errSettled = errors.New("job settled elsewhere")

// Orchestrator runs one claimed job to a terminal state.
type Orchestrator struct {
	jobs      domain.JobRepository
	provider  Provider
	finalizer *Finalizer
	stitcher  transcode.Stitcher
	opts      Options
	logger    *infra.Logger
}

func NewOrchestrator(jobs domain.JobRepository, provider Provider, finalizer *Finalizer, stitcher transcode.Stitcher, opts Options, logger *infra.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:      jobs,
		provider:  provider,
		finalizer: finalizer,
		stitcher:  stitcher,
		opts:      opts.withDefaults(),
		logger:    orNop(logger),
	}
}

// Process claims jobID and drives it to completion. A job that is unknown or
// no longer queued is skipped, so duplicate invocations are harmless. Any
// failure after the claim is recorded on the job and returned.
func (o *Orchestrator) Process(ctx context.Context, jobID string) (err error) {
	job, err := o.jobs.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyClaimed) || errors.Is(err, domain.ErrNotFound) {
			o.logger.Debug().Str("job_id", jobID).Msg("worker: job already handled")
			return nil
		}
		return fmt.Errorf("claim job %s: %w", jobID, err)
	}
	log := o.logger.With().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("kind", string(job.Kind)).
		Logger()
	log.Info().Msg("worker: picked job")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			log.Error().Err(err).Msg("worker: recovered")
			o.fail(ctx, job, err)
		}
	}()

	if runErr := o.run(ctx, job); runErr != nil {
		if errors.Is(runErr, errSettled) || errors.Is(runErr, generation.ErrStopped) {
			log.Info().Msg("worker: job settled elsewhere")
			return nil
		}
		log.Error().Err(runErr).Msg("worker: job failed")
		o.fail(ctx, job, runErr)
		return runErr
	}
	log.Info().Msg("worker: job completed")
	return nil
}

func (o *Orchestrator) run(ctx context.Context, job *domain.Job) error {
	switch job.Kind {
	case domain.JobKindStory:
		scratch, err := os.MkdirTemp(o.opts.ScratchDir, "story-"+job.ID+"-")
		if err != nil {
			return fmt.Errorf("create scratch dir: %w", err)
		}
		defer os.RemoveAll(scratch)

		out, meta, err := o.runStory(ctx, job, scratch)
		if err != nil {
			return err
		}
		_, err = o.finalizer.Persist(ctx, job, out, meta)
		return err
	default:
		candidate, err := o.runSingle(ctx, job)
		if err != nil {
			return err
		}
		_, err = o.finalizer.Persist(ctx, job, candidate, nil)
		return err
	}
}

// runSingle returns the provider's result URL for a single-shot job.
func (o *Orchestrator) runSingle(ctx context.Context, job *domain.Job) (string, error) {
	sub, err := o.provider.Submit(ctx, generation.Request{
		Model:          job.Directive.Model,
		Prompt:         job.Directive.Prompt,
		NegativePrompt: job.Directive.NegativePrompt,
		SourceRef:      job.SourceRef,
		Strength:       job.Directive.Strength,
	})
	if err != nil {
		return "", err
	}
	if sub.ResultURL != "" {
		return sub.ResultURL, nil
	}

	job.ProviderJobID = sub.ProviderJobID
	if err := o.jobs.SetProviderJob(ctx, job.ID, sub.ProviderJobID); err != nil && !errors.Is(err, domain.ErrAlreadyTerminal) {
		return "", fmt.Errorf("record provider job: %w", err)
	}

	var settled *domain.Job
	st, err := o.provider.Await(ctx, sub.ProviderJobID, generation.AwaitOptions{
		Interval: o.opts.PollInterval,
		Budget:   o.opts.PollBudget,
		BeforeTick: func(ctx context.Context) (bool, error) {
			current := o.terminalJob(ctx, job.ID)
			if current == nil {
				return false, nil
			}
			settled = current
			return true, nil
		},
		OnProgress: func(ctx context.Context, p int) { o.advance(ctx, job.ID, p) },
	})
	if errors.Is(err, generation.ErrStopped) && settled != nil {
		// A webhook delivered the result first; the worker still owns persistence.
		if settled.Status == domain.JobStatusCompleted && !settled.ProviderPersisted && settled.ResultRef != "" {
			job.Status = settled.Status
			return settled.ResultRef, nil
		}
		return "", errSettled
	}
	if err != nil {
		return "", err
	}
	return st.ResultURL, nil
}

// terminalJob re-reads the job and returns it when it is terminal. Read
// errors are treated as "still running".
func (o *Orchestrator) terminalJob(ctx context.Context, jobID string) *domain.Job {
	current, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: re-read job failed")
		return nil
	}
	if !current.Status.IsTerminal() {
		return nil
	}
	return current
}

func (o *Orchestrator) advance(ctx context.Context, jobID string, progress int) {
	if err := o.jobs.UpdateProgress(ctx, jobID, progress); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Int("progress", progress).Msg("worker: progress update failed")
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, cause error) {
	err := o.jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, domain.TruncateError(cause.Error()))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyTerminal):
		o.logger.Info().Str("job_id", job.ID).Msg("worker: job already terminal, failure not recorded")
	default:
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: mark failed")
	}
}
