package domain

import (
	"context"
	"time"
)

// JobRepository persists jobs. Every state transition is a conditional write
// so concurrent writers are arbitrated by the store.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	GetForUser(ctx context.Context, jobID, userID string) (*Job, error)
	// Claim flips queued -> processing and returns ErrAlreadyClaimed when the
	// job is unknown or no longer queued.
	Claim(ctx context.Context, jobID string) (*Job, error)
	SetProviderJob(ctx context.Context, jobID, providerJobID string) error
	// UpdateProgress never lowers progress and ignores terminal jobs.
	UpdateProgress(ctx context.Context, jobID string, progress int) error
	// MarkCompleted records a candidate result for a processing job.
	MarkCompleted(ctx context.Context, jobID, resultRef string) error
	MarkFailed(ctx context.Context, jobID, reason string) error
	// Finalize marks the job persisted with a durable result and creates its
	// asset in one transaction. Only the first caller wins.
	Finalize(ctx context.Context, jobID, resultRef string, asset *Asset) (*FinalizeResult, error)
	ListStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
	// TouchStaleQueued sets updated_at to now for a job still queued and
	// older than olderThan. It reports false when another sweep got there
	// first or the job has moved on.
	TouchStaleQueued(ctx context.Context, jobID string, olderThan, now time.Time) (bool, error)
}

// AssetRepository reads assets created by Finalize.
type AssetRepository interface {
	GetBySourceJob(ctx context.Context, jobID string) (*Asset, error)
	ListByOwner(ctx context.Context, userID string, limit int) ([]Asset, error)
}
