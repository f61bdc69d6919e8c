package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"mediagen/internal/domain"
	"mediagen/internal/pipeline"
)

// WebhookSecretHeader authenticates provider callbacks.
const WebhookSecretHeader = "X-Webhook-Secret"

// ProviderWebhook applies a provider notification. Store-side problems are
// reported as 200 so the provider does not retry forever.
func (a *App) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var payload pipeline.WebhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&payload); err != nil {
		a.error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	msg, err := a.Webhook.Handle(r.Context(), r.Header.Get(WebhookSecretHeader), payload)
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid webhook secret")
		return
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "MISSING_JOB_ID", "jobId is required")
		return
	case err != nil:
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"ok": true, "message": msg})
}
