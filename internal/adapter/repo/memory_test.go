package repo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediagen/internal/domain"
)

func newQueuedJob(t *testing.T, store *MemoryStore) *domain.Job {
	t.Helper()
	job := &domain.Job{
		Kind:       domain.JobKindSingle,
		UserID:     "user-1",
		SourceRef:  "https://storage.example.com/media/inputs/user-1/x.mp4",
		Directive:  domain.Directive{Prompt: "noir style"},
		Visibility: domain.VisibilityPublic,
	}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestMemoryStoreClaimIsExclusive(t *testing.T) {
	store := NewMemoryStore()
	job := newQueuedJob(t, store)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Claim(context.Background(), job.ID)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrAlreadyClaimed) {
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("claim winners = %d, want 1", wins)
	}

	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusProcessing || got.Progress != 1 {
		t.Fatalf("after claim: status=%s progress=%d", got.Status, got.Progress)
	}
}

func TestMemoryStoreClaimUnknownJob(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Claim(context.Background(), "missing"); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Fatalf("Claim(missing) err = %v, want ErrAlreadyClaimed", err)
	}
}

func TestMemoryStoreProgressIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job := newQueuedJob(t, store)
	if _, err := store.Claim(ctx, job.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	steps := []struct {
		write int
		want  int
	}{
		{write: 40, want: 40},
		{write: 25, want: 40},
		{write: 250, want: 100},
		{write: -5, want: 100},
	}
	for _, step := range steps {
		if err := store.UpdateProgress(ctx, job.ID, step.write); err != nil {
			t.Fatalf("UpdateProgress(%d): %v", step.write, err)
		}
		got, _ := store.Get(ctx, job.ID)
		if got.Progress != step.want {
			t.Fatalf("after write %d progress = %d, want %d", step.write, got.Progress, step.want)
		}
	}
}

func TestMemoryStoreTerminalStatesAreImmutable(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		terminate func(store *MemoryStore, id string) error
		want      domain.JobStatus
	}{
		{
			name: "completed",
			terminate: func(store *MemoryStore, id string) error {
				return store.MarkCompleted(ctx, id, "https://provider.example/out.mp4")
			},
			want: domain.JobStatusCompleted,
		},
		{
			name: "failed",
			terminate: func(store *MemoryStore, id string) error {
				return store.MarkFailed(ctx, id, "provider exploded")
			},
			want: domain.JobStatusFailed,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := NewMemoryStore()
			job := newQueuedJob(t, store)
			if _, err := store.Claim(ctx, job.ID); err != nil {
				t.Fatalf("claim: %v", err)
			}
			if err := tc.terminate(store, job.ID); err != nil {
				t.Fatalf("terminate: %v", err)
			}

			if err := store.MarkFailed(ctx, job.ID, "late failure"); !errors.Is(err, domain.ErrAlreadyTerminal) {
				t.Fatalf("MarkFailed after terminal err = %v", err)
			}
			if err := store.MarkCompleted(ctx, job.ID, "https://late"); !errors.Is(err, domain.ErrAlreadyTerminal) {
				t.Fatalf("MarkCompleted after terminal err = %v", err)
			}
			if _, err := store.Claim(ctx, job.ID); !errors.Is(err, domain.ErrAlreadyClaimed) {
				t.Fatalf("Claim after terminal err = %v", err)
			}
			_ = store.UpdateProgress(ctx, job.ID, 99)

			got, _ := store.Get(ctx, job.ID)
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s", got.Status, tc.want)
			}
			if (got.ResultRef != "") != (got.Status == domain.JobStatusCompleted) {
				t.Fatalf("resultRef %q inconsistent with status %s", got.ResultRef, got.Status)
			}
		})
	}
}

func TestMemoryStoreFailedJobCannotBeFinalized(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job := newQueuedJob(t, store)
	_, _ = store.Claim(ctx, job.ID)
	_ = store.MarkFailed(ctx, job.ID, "boom")

	res, err := store.Finalize(ctx, job.ID, "https://storage/out.mp4", &domain.Asset{MediaType: domain.MediaTypeVideo})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if res.Won || res.Asset != nil {
		t.Fatalf("finalize on failed job should not create an asset: %+v", res)
	}
	if res.Job.Status != domain.JobStatusFailed || res.Job.ResultRef != "" {
		t.Fatalf("failed job mutated: %+v", res.Job)
	}
}

func TestMemoryStoreFinalizeExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	job := newQueuedJob(t, store)
	_, _ = store.Claim(ctx, job.ID)
	if err := store.MarkCompleted(ctx, job.ID, "https://provider.example/out.mp4"); err != nil {
		t.Fatalf("mark completed: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.Finalize(ctx, job.ID, "https://storage.example.com/media/outputs/user-1/"+job.ID+".mp4",
				&domain.Asset{MediaType: domain.MediaTypeVideo})
			if err != nil {
				t.Errorf("finalize: %v", err)
				return
			}
			if res.Won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("finalize winners = %d, want 1", wins)
	}
	if n := store.AssetCount(job.ID); n != 1 {
		t.Fatalf("asset count = %d, want 1", n)
	}
	asset, err := store.GetBySourceJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if asset.Visibility != domain.VisibilityPublic || asset.OwnerUserID != "user-1" {
		t.Fatalf("asset = %+v", asset)
	}
	got, _ := store.Get(ctx, job.ID)
	if !got.ProviderPersisted || got.Progress != 100 || got.ResultRef != asset.MediaURL {
		t.Fatalf("job after finalize = %+v", got)
	}
}

func TestMemoryStoreListStaleQueued(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	stale := newQueuedJob(t, store)
	claimed := newQueuedJob(t, store)
	_, _ = store.Claim(ctx, claimed.ID)

	store.now = func() time.Time { return base.Add(10 * time.Minute) }
	fresh := newQueuedJob(t, store)

	ids, err := store.ListStaleQueued(ctx, base.Add(5*time.Minute), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("stale ids = %v, want [%s] (fresh %s)", ids, stale.ID, fresh.ID)
	}
}

func TestMemoryStoreTouchStaleQueued(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	job := newQueuedJob(t, store)
	claimed := newQueuedJob(t, store)
	_, _ = store.Claim(ctx, claimed.ID)

	cutoff := base.Add(5 * time.Minute)
	sweptAt := base.Add(7 * time.Minute)
	if ok, err := store.TouchStaleQueued(ctx, job.ID, cutoff, sweptAt); err != nil || !ok {
		t.Fatalf("first touch = %v, %v", ok, err)
	}
	if ok, _ := store.TouchStaleQueued(ctx, job.ID, cutoff, sweptAt); ok {
		t.Fatalf("second touch in the same window must lose")
	}
	if ok, _ := store.TouchStaleQueued(ctx, claimed.ID, cutoff, sweptAt); ok {
		t.Fatalf("claimed job must not be touched")
	}
	ids, _ := store.ListStaleQueued(ctx, cutoff, 10)
	if len(ids) != 0 {
		t.Fatalf("touched job still listed as stale: %v", ids)
	}
}
