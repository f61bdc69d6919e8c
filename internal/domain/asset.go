package domain

import "time"

// MediaType enumerates asset media kinds.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Asset is the browsable record created once per persisted job.
type Asset struct {
	ID          string
	OwnerUserID string
	SourceJobID string
	MediaURL    string
	MediaType   MediaType
	Visibility  Visibility
	AllowRemix  bool
	Meta        map[string]any
	CreatedAt   time.Time
}

// FinalizeResult reports the outcome of a persist attempt.
type FinalizeResult struct {
	Job   *Job
	Asset *Asset
	// Won is true when this call flipped provider_persisted.
	Won bool
}
