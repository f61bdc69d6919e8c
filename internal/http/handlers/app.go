package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/middleware"
	"mediagen/internal/pipeline"
	"mediagen/internal/queue"
)

// App carries the services behind the HTTP handlers.
type App struct {
	Logger  infra.Logger
	Submit  *pipeline.SubmitService
	Status  *pipeline.StatusService
	Webhook *pipeline.WebhookReceiver
	Worker  queue.Processor
	Assets  domain.AssetRepository
	// Direct routes submissions straight to the provider when no job store
	// is configured.
	Direct bool
	// MaxUploadBytes bounds multipart submissions.
	MaxUploadBytes int64
	// Ping probes the backing store for /v1/healthz.
	Ping func(context.Context) error

	inflight sync.WaitGroup
}

// Drain waits for background worker invocations started by WorkerInvoke.
func (a *App) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	middleware.WriteError(w, status, code, message)
}

// fail maps service errors onto the error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingSource):
		a.error(w, http.StatusBadRequest, "MISSING_SOURCE", "sourceUrl, sourceRef or file is required")
	case errors.Is(err, domain.ErrMissingDirective):
		a.error(w, http.StatusBadRequest, "MISSING_DIRECTIVE", "directive or a known presetKey is required")
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "NOT_FOUND", "job not found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		a.error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "job store unavailable")
	case errors.Is(err, domain.ErrProviderFailure), errors.Is(err, domain.ErrProviderTimeout):
		a.error(w, http.StatusBadGateway, "PROVIDER_ERROR", err.Error())
	default:
		a.Logger.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Msg("http: unexpected error")
		a.error(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// NotAllowed answers unsupported methods on known routes.
func (a *App) NotAllowed(w http.ResponseWriter, r *http.Request) {
	a.error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", r.Method+" not allowed")
}

func (a *App) NotFound(w http.ResponseWriter, r *http.Request) {
	a.error(w, http.StatusNotFound, "NOT_FOUND", "route not found")
}
