package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/storage"
)

// Finalizer uploads a job's candidate artifact and records it exactly once.
// Both the worker and the status endpoint persist through it.
type Finalizer struct {
	jobs   domain.JobRepository
	assets domain.AssetRepository
	store  storage.Uploader
	logger *infra.Logger
}

func NewFinalizer(jobs domain.JobRepository, assets domain.AssetRepository, store storage.Uploader, logger *infra.Logger) *Finalizer {
	return &Finalizer{jobs: jobs, assets: assets, store: store, logger: orNop(logger)}
}

// Persist uploads candidate (a provider URL or a local file) to
// outputs/{userId}/{jobId}.{ext} and flips the job to persisted. When another
// caller already persisted the job the stored state is returned with Won
// false and nothing is written.
func (f *Finalizer) Persist(ctx context.Context, job *domain.Job, candidate string, meta map[string]any) (*domain.FinalizeResult, error) {
	if job.ProviderPersisted {
		return f.existing(ctx, job)
	}
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, errors.New("persist: no result to persist")
	}

	durable, err := f.upload(ctx, job, candidate)
	if err != nil {
		return nil, err
	}

	asset := &domain.Asset{
		MediaType: mediaTypeFor(job, durable),
		Meta:      assetMeta(job, meta),
	}
	res, err := f.jobs.Finalize(ctx, job.ID, durable, asset)
	if err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}
	log := f.logger.With().Str("job_id", job.ID).Str("user_id", job.UserID).Logger()
	if res.Won {
		log.Info().Str("result_ref", durable).Str("asset_id", res.Asset.ID).Msg("pipeline: job persisted")
	} else {
		log.Info().Msg("pipeline: job already persisted elsewhere")
	}
	return res, nil
}

func (f *Finalizer) upload(ctx context.Context, job *domain.Job, candidate string) (string, error) {
	if _, ok := f.store.KeyFromURL(candidate); ok {
		return candidate, nil
	}
	in := storage.UploadInput{
		Tags: map[string]string{
			"type": "output",
			"user": job.UserID,
		},
		Metadata: map[string]string{
			"userId": job.UserID,
			"jobId":  job.ID,
		},
	}
	if job.Visibility == domain.VisibilityPublic {
		in.Tags["visibility"] = string(domain.VisibilityPublic)
	}
	if job.ProviderJobID != "" {
		in.Metadata["providerJobId"] = job.ProviderJobID
	}
	if isRemote(candidate) {
		in.URL = candidate
	} else {
		in.Path = candidate
	}
	ext := storage.ExtensionFor("", candidate)
	if ext == ".bin" && job.Kind == domain.JobKindStory {
		ext = ".mp4"
	}
	in.Key = storage.ObjectKey(storage.FolderOutputs, job.UserID, job.ID+ext)

	res, err := f.store.Upload(ctx, in)
	if err != nil {
		return "", fmt.Errorf("persist: upload result: %w", err)
	}
	return res.SecureURL, nil
}

func (f *Finalizer) existing(ctx context.Context, job *domain.Job) (*domain.FinalizeResult, error) {
	res := &domain.FinalizeResult{Job: job}
	if f.assets == nil {
		return res, nil
	}
	asset, err := f.assets.GetBySourceJob(ctx, job.ID)
	switch {
	case err == nil:
		res.Asset = asset
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, fmt.Errorf("persist: load asset: %w", err)
	}
	return res, nil
}

func mediaTypeFor(job *domain.Job, ref string) domain.MediaType {
	if job.Kind == domain.JobKindStory || storage.IsVideo(ref) || storage.IsVideo(job.SourceRef) {
		return domain.MediaTypeVideo
	}
	return domain.MediaTypeImage
}

func assetMeta(job *domain.Job, extra map[string]any) map[string]any {
	meta := map[string]any{
		"kind":   string(job.Kind),
		"prompt": job.Directive.Prompt,
	}
	if job.Directive.NegativePrompt != "" {
		meta["negative_prompt"] = job.Directive.NegativePrompt
	}
	if job.Directive.PresetKey != "" {
		meta["preset_key"] = job.Directive.PresetKey
	}
	if job.Directive.Model != "" {
		meta["model"] = job.Directive.Model
	}
	if job.ProviderJobID != "" {
		meta["provider_job_id"] = job.ProviderJobID
	}
	for k, v := range extra {
		meta[k] = v
	}
	return meta
}

func isRemote(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
