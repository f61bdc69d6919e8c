package pipeline

import (
	"context"
	"errors"
	"testing"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
)

func claimedJob(t *testing.T, store *repo.MemoryStore) *domain.Job {
	t.Helper()
	job := &domain.Job{UserID: "u1", Kind: domain.JobKindSingle, SourceRef: "src", Directive: domain.Directive{Prompt: "p"}}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(context.Background(), job.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	return job
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	store := repo.NewMemoryStore()
	w := NewWebhookReceiver(store, "s3cret", nopLogger())

	if _, err := w.Handle(context.Background(), "wrong", WebhookPayload{JobID: "x", State: "completed"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if _, err := w.Handle(context.Background(), "", WebhookPayload{JobID: "x"}); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("missing secret err = %v", err)
	}
	if _, err := w.Handle(context.Background(), "s3cret", WebhookPayload{}); !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("missing job id err = %v", err)
	}
}

func TestWebhookWithoutSecretAcceptsAnyHeader(t *testing.T) {
	store := repo.NewMemoryStore()
	job := claimedJob(t, store)
	w := NewWebhookReceiver(store, "", nopLogger())

	if _, err := w.Handle(context.Background(), "anything", WebhookPayload{JobID: job.ID, State: "processing"}); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestWebhookRedeliveryIsIdempotent(t *testing.T) {
	store := repo.NewMemoryStore()
	job := claimedJob(t, store)
	w := NewWebhookReceiver(store, "s3cret", nopLogger())
	payload := WebhookPayload{JobID: job.ID, State: "completed", OutputURL: "https://provider.example/out.png"}

	msg, err := w.Handle(context.Background(), "s3cret", payload)
	if err != nil || msg != "job completed" {
		t.Fatalf("first delivery = %q, %v", msg, err)
	}
	first, _ := store.Get(context.Background(), job.ID)

	msg, err = w.Handle(context.Background(), "s3cret", payload)
	if err != nil || msg != "already terminal" {
		t.Fatalf("second delivery = %q, %v", msg, err)
	}
	msg, _ = w.Handle(context.Background(), "s3cret", WebhookPayload{JobID: job.ID, State: "failed", Error: "late"})
	if msg != "already terminal" {
		t.Fatalf("late failure = %q", msg)
	}

	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusCompleted || got.ResultRef != payload.OutputURL || got.ProviderPersisted {
		t.Fatalf("job = %+v", got)
	}
	if !got.UpdatedAt.Equal(first.UpdatedAt) || got.Error != "" {
		t.Fatalf("redelivery changed the job: %+v", got)
	}
}

func TestWebhookProgressNeverChangesStatus(t *testing.T) {
	store := repo.NewMemoryStore()
	job := claimedJob(t, store)
	w := NewWebhookReceiver(store, "", nopLogger())

	over, under := 250.0, 10.0
	if _, err := w.Handle(context.Background(), "", WebhookPayload{JobID: job.ID, State: "processing", Progress: &over}); err != nil {
		t.Fatalf("err = %v", err)
	}
	if _, err := w.Handle(context.Background(), "", WebhookPayload{JobID: job.ID, State: "queued", Progress: &under}); err != nil {
		t.Fatalf("err = %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusProcessing || got.Progress != 100 {
		t.Fatalf("job = %+v", got)
	}
}

func TestWebhookCompletionRequiresOutputURL(t *testing.T) {
	store := repo.NewMemoryStore()
	job := claimedJob(t, store)
	w := NewWebhookReceiver(store, "", nopLogger())

	if _, err := w.Handle(context.Background(), "", WebhookPayload{JobID: job.ID, State: "completed"}); err != nil {
		t.Fatalf("err = %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestWebhookFailureRecordsReason(t *testing.T) {
	store := repo.NewMemoryStore()
	job := claimedJob(t, store)
	w := NewWebhookReceiver(store, "", nopLogger())

	if _, err := w.Handle(context.Background(), "", WebhookPayload{JobID: job.ID, State: "error"}); err != nil {
		t.Fatalf("err = %v", err)
	}
	got, _ := store.Get(context.Background(), job.ID)
	assertResultInvariant(t, got)
	if got.Status != domain.JobStatusFailed || got.Error != "provider reported failure" {
		t.Fatalf("job = %+v", got)
	}
}

type unavailableStore struct {
	domain.JobRepository
}

func (unavailableStore) MarkCompleted(context.Context, string, string) error {
	return domain.ErrStoreUnavailable
}

func TestWebhookStoreUnavailableIsInformational(t *testing.T) {
	w := NewWebhookReceiver(unavailableStore{}, "", nopLogger())
	msg, err := w.Handle(context.Background(), "", WebhookPayload{JobID: "j1", State: "completed", OutputURL: "https://x/y.png"})
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if msg != "job store unavailable, notification ignored" {
		t.Fatalf("msg = %q", msg)
	}
}
