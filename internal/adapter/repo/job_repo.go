package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL through the
// marker-checked SQL runner.
type JobRepositoryPG struct {
	sql    infra.SQLTxExecutor
	assets *AssetRepositoryPG
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLTxExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql, assets: NewAssetRepository(sql)}
}

// Create inserts a new queued job record, assigning an id when missing.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	directive, err := json.Marshal(job.Directive)
	if err != nil {
		return fmt.Errorf("encode directive: %w", err)
	}
	var story []byte
	if job.Story != nil {
		if story, err = json.Marshal(job.Story); err != nil {
			return fmt.Errorf("encode story: %w", err)
		}
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		string(job.Kind),
		job.UserID,
		job.SourceRef,
		directive,
		string(job.Visibility),
		job.AllowRemix,
		story,
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return mapStoreErr(err)
	}
	job.Status = domain.JobStatusQueued
	job.Progress = 0
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJob, jobID))
}

// GetForUser fetches a job owned by userID.
func (r *JobRepositoryPG) GetForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobForUser, jobID, userID))
}

func (r *JobRepositoryPG) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, domain.ErrAlreadyClaimed
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QClaimJob, jobID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrAlreadyClaimed
	}
	return job, err
}

func (r *JobRepositoryPG) SetProviderJob(ctx context.Context, jobID, providerJobID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QSetProviderJob, jobID, providerJobID)
	if err != nil {
		return mapStoreErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyTerminal
	}
	return nil
}

func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QUpdateJobProgress, jobID, domain.ClampProgress(progress))
	return mapStoreErr(err)
}

func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID, resultRef string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkJobCompleted, jobID, resultRef)
	if err != nil {
		return mapStoreErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyTerminal
	}
	return nil
}

func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, reason string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkJobFailed, jobID, domain.TruncateError(reason))
	if err != nil {
		return mapStoreErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyTerminal
	}
	return nil
}

// Finalize flips provider_persisted and inserts the asset in one transaction.
// A caller that loses the race receives the current job and asset with Won=false.
func (r *JobRepositoryPG) Finalize(ctx context.Context, jobID, resultRef string, asset *domain.Asset) (*domain.FinalizeResult, error) {
	if asset == nil {
		return nil, errors.New("finalize: asset is required")
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	meta, err := json.Marshal(asset.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode asset meta: %w", err)
	}

	var won *domain.Job
	err = r.sql.WithTx(ctx, func(tx infra.SQLExecutor) error {
		job, err := scanJob(tx.QueryRow(ctx, sqlinline.QFinalizeJob, jobID, resultRef))
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, sqlinline.QInsertAssetForJob,
			asset.ID,
			job.UserID,
			job.ID,
			resultRef,
			string(asset.MediaType),
			string(job.Visibility),
			job.AllowRemix,
			meta,
		)
		if err := row.Scan(&asset.CreatedAt); err != nil {
			if infra.IsNoRows(err) {
				// An asset already exists for this job; keep the job update.
				won = job
				return nil
			}
			return mapStoreErr(err)
		}
		won = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	if won != nil {
		stored, err := r.assets.GetBySourceJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return &domain.FinalizeResult{Job: won, Asset: stored, Won: stored.ID == asset.ID}, nil
	}

	current, err := r.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	res := &domain.FinalizeResult{Job: current}
	if current.ProviderPersisted {
		if existing, err := r.assets.GetBySourceJob(ctx, jobID); err == nil {
			res.Asset = existing
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	return res, nil
}

func (r *JobRepositoryPG) ListStaleQueued(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleQueuedJobs, olderThan, limit)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *JobRepositoryPG) TouchStaleQueued(ctx context.Context, jobID string, olderThan, now time.Time) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QTouchStaleQueuedJob, jobID, olderThan, now)
	if err != nil {
		return false, mapStoreErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                      domain.Job
		kind, status, visibility string
		directiveJSON, storyJSON []byte
	)
	if err := row.Scan(
		&job.ID,
		&kind,
		&job.UserID,
		&job.SourceRef,
		&directiveJSON,
		&status,
		&job.Progress,
		&job.ResultRef,
		&job.ProviderJobID,
		&job.ProviderPersisted,
		&job.Error,
		&visibility,
		&job.AllowRemix,
		&storyJSON,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, mapStoreErr(err)
	}
	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	job.Visibility = domain.Visibility(visibility)
	if len(directiveJSON) > 0 {
		if err := json.Unmarshal(directiveJSON, &job.Directive); err != nil {
			return nil, fmt.Errorf("decode directive: %w", err)
		}
	}
	if len(storyJSON) > 0 && string(storyJSON) != "null" {
		var story domain.StoryParams
		if err := json.Unmarshal(storyJSON, &story); err != nil {
			return nil, fmt.Errorf("decode story: %w", err)
		}
		job.Story = &story
	}
	return &job, nil
}

// mapStoreErr translates driver errors into domain sentinels.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case infra.IsNoRows(err):
		return domain.ErrNotFound
	case infra.IsUndefinedTable(err):
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	default:
		return err
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
