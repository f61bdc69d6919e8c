package handlers

import (
	"context"
	"net/http"
	"time"
)

// Health reports liveness and, when a store probe is configured, readiness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "mode": a.mode()}
	if a.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ping(ctx); err != nil {
			resp["status"] = "degraded"
			resp["store"] = err.Error()
			a.json(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) mode() string {
	if a.Direct {
		return "direct"
	}
	return "queued"
}
