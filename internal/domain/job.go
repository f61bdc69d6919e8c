package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// JobKind selects the sub-pipeline the worker runs for a job.
type JobKind string

const (
	JobKindSingle JobKind = "single"
	JobKindStory  JobKind = "story"
)

// JobStatus enumerates job lifecycle states. Transitions only move forward:
// queued -> processing -> {completed, failed, canceled}.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
)

// IsTerminal reports whether no further status writes are allowed.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// Visibility controls the sharing tag applied to the resulting asset.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// ParseVisibility returns VisibilityPublic only for an explicit "public".
func ParseVisibility(raw string) Visibility {
	if strings.EqualFold(strings.TrimSpace(raw), string(VisibilityPublic)) {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// MaxErrorLength bounds the stored failure reason in characters.
const MaxErrorLength = 2000

// Story defaults.
const (
	DefaultStoryFPS    = 30
	DefaultStoryWidth  = 1280
	DefaultStoryHeight = 720
)

// DefaultShotList is used when a story request carries no shots.
var DefaultShotList = []string{
	"establishing wide shot introducing the subject",
	"medium shot as the subject moves through the scene",
	"close-up detail shot with dramatic lighting",
	"closing shot pulling back to reveal the full scene",
}

// Directive is the style instruction handed to the provider.
type Directive struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Model          string   `json:"model,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`
	PresetKey      string   `json:"preset_key,omitempty"`
}

// StoryParams carries the story-only fields of a job.
type StoryParams struct {
	ShotList []string `json:"shot_list"`
	FPS      int      `json:"fps"`
	Width    int      `json:"width"`
	Height   int      `json:"height"`
}

// Normalize fills in default shots and output geometry.
func (p *StoryParams) Normalize() {
	shots := make([]string, 0, len(p.ShotList))
	for _, s := range p.ShotList {
		if s = strings.TrimSpace(s); s != "" {
			shots = append(shots, s)
		}
	}
	if len(shots) == 0 {
		shots = append(shots, DefaultShotList...)
	}
	p.ShotList = shots
	if p.FPS <= 0 {
		p.FPS = DefaultStoryFPS
	}
	if p.Width <= 0 {
		p.Width = DefaultStoryWidth
	}
	if p.Height <= 0 {
		p.Height = DefaultStoryHeight
	}
}

// Job is the unit of work. Story is non-nil iff Kind is JobKindStory.
type Job struct {
	ID                string
	Kind              JobKind
	UserID            string
	SourceRef         string
	Directive         Directive
	Status            JobStatus
	Progress          int
	ResultRef         string
	ProviderJobID     string
	ProviderPersisted bool
	Error             string
	Visibility        Visibility
	AllowRemix        bool
	Story             *StoryParams
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TruncateError shortens msg to MaxErrorLength runes.
func TruncateError(msg string) string {
	msg = strings.TrimSpace(msg)
	if utf8.RuneCountInString(msg) <= MaxErrorLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxErrorLength])
}

// ClampProgress bounds p to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
