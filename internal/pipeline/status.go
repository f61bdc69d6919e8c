package pipeline

import (
	"context"
	"errors"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

// Public job states shown to clients.
const (
	PublicQueued  = "queued"
	PublicRunning = "running"
	PublicFailed  = "failed"
	PublicDone    = "done"
)

// PublicStatus collapses internal states into the client vocabulary.
func PublicStatus(s domain.JobStatus) string {
	switch s {
	case domain.JobStatusQueued:
		return PublicQueued
	case domain.JobStatusProcessing:
		return PublicRunning
	case domain.JobStatusCompleted:
		return PublicDone
	default:
		return PublicFailed
	}
}

// PollResult is the client-facing job envelope.
type PollResult struct {
	OK       bool      `json:"ok"`
	Status   string    `json:"status"`
	Progress *int      `json:"progress,omitempty"`
	Error    string    `json:"error,omitempty"`
	Data     *PollData `json:"data,omitempty"`
}

type PollData struct {
	ResultURL string `json:"resultUrl"`
	AssetID   string `json:"assetId,omitempty"`
}

// StatusRecord is the generic status view in the internal vocabulary.
type StatusRecord struct {
	ID            string           `json:"id"`
	Status        domain.JobStatus `json:"status"`
	ResultRef     string           `json:"resultRef,omitempty"`
	Error         string           `json:"error,omitempty"`
	ProviderJobID string           `json:"providerJobId,omitempty"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// StatusService answers client status queries and lazily persists completed
// jobs on request.
type StatusService struct {
	jobs      domain.JobRepository
	assets    domain.AssetRepository
	finalizer *Finalizer
	logger    *infra.Logger
}

func NewStatusService(jobs domain.JobRepository, assets domain.AssetRepository, finalizer *Finalizer, logger *infra.Logger) *StatusService {
	return &StatusService{jobs: jobs, assets: assets, finalizer: finalizer, logger: orNop(logger)}
}

// Poll returns the job as seen by its owner. With persist set, a completed
// job whose result is not yet durable is persisted first; a persist failure
// is logged and the current result is returned.
func (s *StatusService) Poll(ctx context.Context, userID, jobID string, persist bool) (*PollResult, error) {
	job, err := s.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	res := &PollResult{OK: true, Status: PublicStatus(job.Status)}

	switch job.Status {
	case domain.JobStatusQueued, domain.JobStatusProcessing:
		p := job.Progress
		res.Progress = &p
		return res, nil
	case domain.JobStatusCompleted:
	default:
		res.Error = job.Error
		return res, nil
	}

	var asset *domain.Asset
	if persist && !job.ProviderPersisted && job.ResultRef != "" && s.finalizer != nil {
		fin, err := s.finalizer.Persist(ctx, job, job.ResultRef, nil)
		if err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("status: lazy persist failed")
		} else {
			job, asset = fin.Job, fin.Asset
		}
	}
	if asset == nil && job.ProviderPersisted && s.assets != nil {
		a, err := s.assets.GetBySourceJob(ctx, job.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("status: load asset failed")
		}
		asset = a
	}

	res.Data = &PollData{ResultURL: job.ResultRef}
	if asset != nil {
		res.Data.AssetID = asset.ID
	}
	return res, nil
}

// Status returns the generic status record for the owner's job.
func (s *StatusService) Status(ctx context.Context, userID, jobID string) (*StatusRecord, error) {
	job, err := s.jobs.GetForUser(ctx, jobID, userID)
	if err != nil {
		return nil, err
	}
	return &StatusRecord{
		ID:            job.ID,
		Status:        job.Status,
		ResultRef:     job.ResultRef,
		Error:         job.Error,
		ProviderJobID: job.ProviderJobID,
		UpdatedAt:     job.UpdatedAt,
	}, nil
}
