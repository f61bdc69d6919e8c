package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mediagen/internal/adapter/repo"
	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers/generation"
	"mediagen/internal/storage"
	"mediagen/internal/transcode"
)

const cdnBase = "https://cdn.mediagen.test/media"

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func nopLogger() *infra.Logger {
	l := infra.Logger(zerolog.Nop())
	return &l
}

type fakeUploader struct {
	mu      sync.Mutex
	uploads []storage.UploadInput
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, in storage.UploadInput) (*storage.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if in.Path != "" {
		if _, err := os.Stat(in.Path); err != nil {
			return nil, err
		}
	}
	f.uploads = append(f.uploads, in)
	return &storage.UploadResult{PublicID: in.Key, SecureURL: cdnBase + "/" + in.Key}, nil
}

func (f *fakeUploader) KeyFromURL(rawURL string) (string, bool) {
	if strings.HasPrefix(rawURL, cdnBase+"/") {
		return strings.TrimPrefix(rawURL, cdnBase+"/"), true
	}
	return "", false
}

func (f *fakeUploader) URLForKey(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, up := range f.uploads {
		if up.Key == key {
			return cdnBase + "/" + key, nil
		}
	}
	return "", storage.ErrObjectNotFound
}

func (f *fakeUploader) all() []storage.UploadInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.UploadInput(nil), f.uploads...)
}

type fakeStitcher struct {
	mu      sync.Mutex
	calls   []transcode.Spec
	err     error
	panicky bool
}

func (f *fakeStitcher) Stitch(_ context.Context, spec transcode.Spec) error {
	f.mu.Lock()
	f.calls = append(f.calls, spec)
	f.mu.Unlock()
	if f.panicky {
		panic("encoder exploded")
	}
	if f.err != nil {
		return f.err
	}
	for _, still := range spec.Stills {
		if _, err := os.Stat(still); err != nil {
			return err
		}
	}
	return os.WriteFile(spec.Output, []byte("mp4"), 0o644)
}

func (f *fakeStitcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingTrigger struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (r *recordingTrigger) Trigger(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, jobID)
	return r.err
}

// providerStub is an httptest stand-in for the upstream provider. Submit and
// status behaviour is scripted per call number (1-based).
type providerStub struct {
	srv *httptest.Server

	mu          sync.Mutex
	submitCalls int
	statusCalls int
	bodies      []map[string]any
	onSubmit    func(call int, body map[string]any) (int, any)
	onStatus    func(call int, id string) (int, any)
}

func newProviderStub(t *testing.T) *providerStub {
	t.Helper()
	p := &providerStub{}
	p.onSubmit = func(int, map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"job_id": "prov-1", "status": "queued"}
	}
	p.onStatus = func(int, string) (int, any) {
		return http.StatusOK, map[string]any{"status": "completed", "outputUrl": p.fileURL("out.png")}
	}

	mux := chi.NewRouter()
	mux.Post("/v1/generations", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		p.mu.Lock()
		p.submitCalls++
		p.bodies = append(p.bodies, body)
		call, fn := p.submitCalls, p.onSubmit
		p.mu.Unlock()
		code, payload := fn(call, body)
		writeJSON(w, code, payload)
	})
	mux.Get("/v1/generations/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.statusCalls++
		call, fn := p.statusCalls, p.onStatus
		p.mu.Unlock()
		code, payload := fn(call, chi.URLParam(r, "id"))
		writeJSON(w, code, payload)
	})
	mux.Get("/files/*", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *providerStub) fileURL(name string) string {
	return p.srv.URL + "/files/" + name
}

func (p *providerStub) client(t *testing.T) *generation.Client {
	t.Helper()
	c, err := generation.NewClient(generation.Options{
		APIKey:     "test-key",
		BaseURL:    p.srv.URL + "/v1",
		HTTPClient: p.srv.Client(),
	})
	if err != nil {
		t.Fatalf("new provider client: %v", err)
	}
	return c
}

func (p *providerStub) submits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.submitCalls
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type harness struct {
	store     *repo.MemoryStore
	uploader  *fakeUploader
	stitcher  *fakeStitcher
	provider  *providerStub
	finalizer *Finalizer
	worker    *Orchestrator
	status    *StatusService
	scratch   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:    repo.NewMemoryStore(),
		uploader: &fakeUploader{},
		stitcher: &fakeStitcher{},
		provider: newProviderStub(t),
		scratch:  t.TempDir(),
	}
	h.finalizer = NewFinalizer(h.store, h.store, h.uploader, nopLogger())
	h.worker = NewOrchestrator(h.store, h.provider.client(t), h.finalizer, h.stitcher, Options{
		PollInterval: time.Millisecond,
		PollBudget:   time.Second,
		ScratchDir:   h.scratch,
	}, nopLogger())
	h.status = NewStatusService(h.store, h.store, h.finalizer, nopLogger())
	return h
}

func (h *harness) withBudget(budget time.Duration) {
	h.worker.opts.PollBudget = budget
	h.worker.opts.PollInterval = 5 * time.Millisecond
}

func (h *harness) createJob(t *testing.T, job *domain.Job) *domain.Job {
	t.Helper()
	if job.UserID == "" {
		job.UserID = "u1"
	}
	if job.Kind == "" {
		job.Kind = domain.JobKindSingle
	}
	if job.SourceRef == "" {
		job.SourceRef = cdnBase + "/inputs/u1/source.png"
	}
	if job.Directive.Prompt == "" {
		job.Directive.Prompt = "noir style"
	}
	if job.Visibility == "" {
		job.Visibility = domain.VisibilityPublic
	}
	if err := h.store.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func (h *harness) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job
}

// assertResultInvariant checks that result_ref is set iff the job completed.
func assertResultInvariant(t *testing.T, job *domain.Job) {
	t.Helper()
	if (job.Status == domain.JobStatusCompleted) != (job.ResultRef != "") {
		t.Fatalf("status %s with result_ref %q", job.Status, job.ResultRef)
	}
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("scratch not cleaned: %d entries left", len(entries))
	}
}
