package repo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediagen/internal/domain"
)

// MemoryStore is an in-process job and asset store with the same conditional
// write semantics as the PostgreSQL repositories.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*domain.Job
	assets []*domain.Asset
	now    func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, exists := m.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	now := m.now()
	job.Status = domain.JobStatusQueued
	job.Progress = 0
	job.CreatedAt, job.UpdatedAt = now, now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) GetForUser(_ context.Context, jobID, userID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (m *MemoryStore) Claim(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusQueued {
		return nil, domain.ErrAlreadyClaimed
	}
	job.Status = domain.JobStatusProcessing
	if job.Progress < 1 {
		job.Progress = 1
	}
	job.UpdatedAt = m.now()
	return cloneJob(job), nil
}

func (m *MemoryStore) SetProviderJob(_ context.Context, jobID, providerJobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrAlreadyTerminal
	}
	job.ProviderJobID = providerJobID
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) UpdateProgress(_ context.Context, jobID string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status.IsTerminal() {
		return nil
	}
	if p := domain.ClampProgress(progress); p > job.Progress {
		job.Progress = p
		job.UpdatedAt = m.now()
	}
	return nil
}

func (m *MemoryStore) MarkCompleted(_ context.Context, jobID, resultRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrAlreadyTerminal
	}
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.ResultRef = resultRef
	job.Error = ""
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, jobID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing {
		return domain.ErrAlreadyTerminal
	}
	job.Status = domain.JobStatusFailed
	job.Error = domain.TruncateError(reason)
	job.ResultRef = ""
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) Finalize(_ context.Context, jobID, resultRef string, asset *domain.Asset) (*domain.FinalizeResult, error) {
	if asset == nil {
		return nil, errors.New("finalize: asset is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	eligible := !job.ProviderPersisted &&
		(job.Status == domain.JobStatusProcessing || job.Status == domain.JobStatusCompleted)
	if !eligible {
		res := &domain.FinalizeResult{Job: cloneJob(job)}
		if existing := m.assetFor(jobID); existing != nil {
			res.Asset = cloneAsset(existing)
		}
		return res, nil
	}

	now := m.now()
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.ResultRef = resultRef
	job.ProviderPersisted = true
	job.Error = ""
	job.UpdatedAt = now

	if existing := m.assetFor(jobID); existing != nil {
		return &domain.FinalizeResult{Job: cloneJob(job), Asset: cloneAsset(existing)}, nil
	}
	stored := cloneAsset(asset)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.OwnerUserID = job.UserID
	stored.SourceJobID = job.ID
	stored.MediaURL = resultRef
	stored.Visibility = job.Visibility
	stored.AllowRemix = job.AllowRemix
	stored.CreatedAt = now
	m.assets = append(m.assets, stored)
	asset.ID = stored.ID
	asset.CreatedAt = now
	return &domain.FinalizeResult{Job: cloneJob(job), Asset: cloneAsset(stored), Won: true}, nil
}

func (m *MemoryStore) ListStaleQueued(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale []*domain.Job
	for _, job := range m.jobs {
		if job.Status == domain.JobStatusQueued && job.UpdatedAt.Before(olderThan) {
			stale = append(stale, job)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })
	ids := make([]string, 0, len(stale))
	for i, job := range stale {
		if i >= limit {
			break
		}
		ids = append(ids, job.ID)
	}
	return ids, nil
}

func (m *MemoryStore) TouchStaleQueued(_ context.Context, jobID string, olderThan, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusQueued || !job.UpdatedAt.Before(olderThan) {
		return false, nil
	}
	job.UpdatedAt = now
	return true, nil
}

func (m *MemoryStore) GetBySourceJob(_ context.Context, jobID string) (*domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	asset := m.assetFor(jobID)
	if asset == nil {
		return nil, domain.ErrNotFound
	}
	return cloneAsset(asset), nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, userID string, limit int) ([]domain.Asset, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Asset
	for _, asset := range m.assets {
		if asset.OwnerUserID == userID {
			out = append(out, *cloneAsset(asset))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AssetCount reports how many assets exist for jobID.
func (m *MemoryStore) AssetCount(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, asset := range m.assets {
		if asset.SourceJobID == jobID {
			n++
		}
	}
	return n
}

func (m *MemoryStore) assetFor(jobID string) *domain.Asset {
	for _, asset := range m.assets {
		if asset.SourceJobID == jobID {
			return asset
		}
	}
	return nil
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	if j.Directive.Strength != nil {
		s := *j.Directive.Strength
		c.Directive.Strength = &s
	}
	if j.Story != nil {
		story := *j.Story
		story.ShotList = append([]string(nil), j.Story.ShotList...)
		c.Story = &story
	}
	return &c
}

func cloneAsset(a *domain.Asset) *domain.Asset {
	c := *a
	if a.Meta != nil {
		c.Meta = make(map[string]any, len(a.Meta))
		for k, v := range a.Meta {
			c.Meta[k] = v
		}
	}
	return &c
}

var (
	_ domain.JobRepository   = (*MemoryStore)(nil)
	_ domain.AssetRepository = (*MemoryStore)(nil)
)
