package pipeline

import (
	"context"
	"fmt"
	"strings"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/presets"
	"mediagen/internal/providers/generation"
	"mediagen/internal/storage"
)

const maxStoryShots = 8

// SubmitRequest is a validated-on-entry job submission.
type SubmitRequest struct {
	UserID            string
	Kind              string
	Source            Input
	Directive         string
	NegativeDirective string
	PresetKey         string
	Model             string
	Strength          *float64
	Visibility        domain.Visibility
	AllowRemix        bool
	Shots             []string
	FPS               int
	Width             int
	Height            int
}

// SubmitResult is returned to the client once the job is queued.
type SubmitResult struct {
	JobID  string           `json:"jobId"`
	Status domain.JobStatus `json:"status"`
}

// DirectResult is returned when no job store is configured.
type DirectResult struct {
	ProviderJobID string `json:"providerJobId,omitempty"`
	ResultURL     string `json:"resultUrl,omitempty"`
}

// SubmitService validates submissions, stores them as queued jobs and
// triggers a worker.
type SubmitService struct {
	jobs     domain.JobRepository
	resolver *Resolver
	presets  *presets.Catalog
	trigger  Trigger
	provider Provider
	logger   *infra.Logger
}

func NewSubmitService(jobs domain.JobRepository, resolver *Resolver, catalog *presets.Catalog, trigger Trigger, provider Provider, logger *infra.Logger) *SubmitService {
	return &SubmitService{
		jobs:     jobs,
		resolver: resolver,
		presets:  catalog,
		trigger:  trigger,
		provider: provider,
		logger:   orNop(logger),
	}
}

// Submit creates a queued job and fires the worker trigger. Trigger errors
// are logged; the job stays queued for the sweeper.
func (s *SubmitService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if s.jobs == nil {
		return nil, domain.ErrStoreUnavailable
	}
	job, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	log := s.logger.With().Str("job_id", job.ID).Str("user_id", job.UserID).Str("kind", string(job.Kind)).Logger()
	log.Info().Msg("pipeline: job queued")

	if s.trigger != nil {
		if err := s.trigger.Trigger(ctx, job.ID); err != nil {
			log.Warn().Err(err).Msg("pipeline: worker trigger failed")
		}
	}
	return &SubmitResult{JobID: job.ID, Status: domain.JobStatusQueued}, nil
}

// SubmitDirect validates and resolves the request, then calls the provider
// synchronously without recording a job.
func (s *SubmitService) SubmitDirect(ctx context.Context, req SubmitRequest) (*DirectResult, error) {
	job, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if job.Kind == domain.JobKindStory {
		return nil, fmt.Errorf("%w: story jobs require a job store", domain.ErrInvalidRequest)
	}
	sub, err := s.provider.Submit(ctx, generation.Request{
		Model:          job.Directive.Model,
		Prompt:         job.Directive.Prompt,
		NegativePrompt: job.Directive.NegativePrompt,
		SourceRef:      job.SourceRef,
		Strength:       job.Directive.Strength,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", job.UserID).
		Str("provider_job_id", sub.ProviderJobID).
		Msg("pipeline: direct submission")
	return &DirectResult{ProviderJobID: sub.ProviderJobID, ResultURL: sub.ResultURL}, nil
}

func (s *SubmitService) prepare(ctx context.Context, req SubmitRequest) (*domain.Job, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.ErrUnauthorized
	}
	if req.Source.Empty() {
		return nil, domain.ErrMissingSource
	}
	kind, err := parseKind(req.Kind)
	if err != nil {
		return nil, err
	}
	directive, err := s.directive(req)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		Kind:       kind,
		UserID:     req.UserID,
		Directive:  directive,
		Visibility: req.Visibility,
		AllowRemix: req.AllowRemix,
	}
	if job.Visibility == "" {
		job.Visibility = domain.VisibilityPrivate
	}
	if kind == domain.JobKindStory {
		if len(req.Shots) > maxStoryShots {
			return nil, fmt.Errorf("%w: at most %d shots", domain.ErrInvalidRequest, maxStoryShots)
		}
		story := &domain.StoryParams{ShotList: req.Shots, FPS: req.FPS, Width: req.Width, Height: req.Height}
		story.Normalize()
		job.Story = story
	}

	ref, err := s.resolver.Resolve(ctx, req.Source, req.UserID, storage.FolderInputs)
	if err != nil {
		return nil, err
	}
	job.SourceRef = ref
	return job, nil
}

// directive merges the preset with the explicit request fields; explicit
// fields win.
func (s *SubmitService) directive(req SubmitRequest) (domain.Directive, error) {
	d := domain.Directive{
		Prompt:         strings.TrimSpace(req.Directive),
		NegativePrompt: strings.TrimSpace(req.NegativeDirective),
		Model:          strings.TrimSpace(req.Model),
		Strength:       req.Strength,
	}
	if key := strings.TrimSpace(req.PresetKey); key != "" {
		if p, ok := s.presets.Lookup(key); ok {
			d.PresetKey = p.Key
			if d.Prompt == "" {
				d.Prompt = p.Prompt
			}
			if d.NegativePrompt == "" {
				d.NegativePrompt = p.NegativePrompt
			}
			if d.Model == "" {
				d.Model = p.Model
			}
			if d.Strength == nil && p.Strength != nil {
				v := *p.Strength
				d.Strength = &v
			}
		} else {
			s.logger.Debug().Str("preset_key", key).Msg("pipeline: unknown preset key")
		}
	}
	if d.Prompt == "" {
		return domain.Directive{}, domain.ErrMissingDirective
	}
	if d.Strength != nil && (*d.Strength < 0 || *d.Strength > 1) {
		return domain.Directive{}, fmt.Errorf("%w: strength must be within [0,1]", domain.ErrInvalidRequest)
	}
	return d, nil
}

func parseKind(raw string) (domain.JobKind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(domain.JobKindSingle):
		return domain.JobKindSingle, nil
	case string(domain.JobKindStory):
		return domain.JobKindStory, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidRequest, raw)
}
