package pipeline

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
	"mediagen/internal/providers/generation"
)

// WebhookPayload is the provider's completion notification.
type WebhookPayload struct {
	JobID     string   `json:"jobId"`
	State     string   `json:"state"`
	OutputURL string   `json:"outputUrl,omitempty"`
	Error     string   `json:"error,omitempty"`
	Progress  *float64 `json:"progress,omitempty"`
}

// WebhookReceiver applies provider notifications to jobs. It never fails the
// provider for store-side problems.
type WebhookReceiver struct {
	jobs   domain.JobRepository
	secret string
	logger *infra.Logger
}

func NewWebhookReceiver(jobs domain.JobRepository, secret string, logger *infra.Logger) *WebhookReceiver {
	return &WebhookReceiver{jobs: jobs, secret: secret, logger: orNop(logger)}
}

// Handle applies p and returns an informational message. It returns
// domain.ErrUnauthorized on a secret mismatch and domain.ErrInvalidRequest
// when the job id is missing; every other outcome is a success.
func (w *WebhookReceiver) Handle(ctx context.Context, secret string, p WebhookPayload) (string, error) {
	if w.secret != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(w.secret)) != 1 {
		return "", domain.ErrUnauthorized
	}
	jobID := strings.TrimSpace(p.JobID)
	if jobID == "" {
		return "", fmt.Errorf("%w: jobId is required", domain.ErrInvalidRequest)
	}
	if w.jobs == nil {
		return "job store not configured", nil
	}
	log := w.logger.With().Str("job_id", jobID).Str("state", p.State).Logger()

	var err error
	var msg string
	switch generation.MapState(p.State) {
	case generation.StateSucceeded:
		if strings.TrimSpace(p.OutputURL) == "" {
			return "completion without outputUrl ignored", nil
		}
		err = w.jobs.MarkCompleted(ctx, jobID, strings.TrimSpace(p.OutputURL))
		msg = "job completed"
	case generation.StateFailed:
		reason := strings.TrimSpace(p.Error)
		if reason == "" {
			reason = "provider reported failure"
		}
		err = w.jobs.MarkFailed(ctx, jobID, reason)
		msg = "job failed"
	default:
		if p.Progress == nil {
			return "no change", nil
		}
		err = w.jobs.UpdateProgress(ctx, jobID, domain.ClampProgress(int(*p.Progress)))
		msg = "progress recorded"
	}

	switch {
	case err == nil:
		log.Info().Msg("webhook: applied")
		return msg, nil
	case errors.Is(err, domain.ErrAlreadyTerminal):
		log.Debug().Msg("webhook: job already terminal")
		return "already terminal", nil
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrNotFound):
		log.Warn().Err(err).Msg("webhook: store unavailable")
		return "job store unavailable, notification ignored", nil
	default:
		log.Error().Err(err).Msg("webhook: apply failed")
		return "notification not applied", nil
	}
}
