package handlers

import (
	"net/http"
	"strconv"
	"time"
)

type assetItem struct {
	ID          string         `json:"id"`
	SourceJobID string         `json:"sourceJobId"`
	MediaURL    string         `json:"mediaUrl"`
	MediaType   string         `json:"mediaType"`
	Visibility  string         `json:"visibility"`
	AllowRemix  bool           `json:"allowRemix"`
	Meta        map[string]any `json:"meta,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// ListAssets returns the caller's persisted artifacts, newest first.
func (a *App) ListAssets(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing user context")
		return
	}
	if a.Assets == nil {
		a.error(w, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "asset store unavailable")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	assets, err := a.Assets.ListByOwner(r.Context(), userID, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]assetItem, 0, len(assets))
	for _, as := range assets {
		items = append(items, assetItem{
			ID:          as.ID,
			SourceJobID: as.SourceJobID,
			MediaURL:    as.MediaURL,
			MediaType:   string(as.MediaType),
			Visibility:  string(as.Visibility),
			AllowRemix:  as.AllowRemix,
			Meta:        as.Meta,
			CreatedAt:   as.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}
