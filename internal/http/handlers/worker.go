package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

type workerRequest struct {
	JobID string `json:"jobId"`
}

// WorkerInvoke accepts a job id and processes it in the background. The
// internal key is checked by the router.
func (a *App) WorkerInvoke(w http.ResponseWriter, r *http.Request) {
	var req workerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "MISSING_JOB_ID", "jobId is required")
		return
	}
	if a.Worker == nil {
		a.error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "worker not configured")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	a.inflight.Add(1)
	go func() {
		defer a.inflight.Done()
		if err := a.Worker.Process(ctx, jobID); err != nil {
			a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("worker: job ended with error")
		}
	}()
	a.json(w, http.StatusAccepted, map[string]any{"ok": true, "jobId": jobID})
}
