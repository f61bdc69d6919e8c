// Package pipeline moves media-generation jobs from submission through the
// upstream provider to a persisted asset.
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/infra"
	"mediagen/internal/providers/generation"
)

// Provider is the subset of the generation client the pipeline drives.
type Provider interface {
	Submit(ctx context.Context, req generation.Request) (*generation.Submission, error)
	Await(ctx context.Context, providerJobID string, opts generation.AwaitOptions) (*generation.Status, error)
	Generate(ctx context.Context, req generation.Request, opts generation.AwaitOptions) (string, error)
	Download(ctx context.Context, rawURL, dest string) (string, error)
}

// Trigger hands a queued job to a worker without waiting for it to start.
type Trigger interface {
	Trigger(ctx context.Context, jobID string) error
}

// Options tunes the worker.
type Options struct {
	PollInterval time.Duration
	PollBudget   time.Duration
	ScratchDir   string
	ShotSeconds  float64
	FadeSeconds  float64
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	if o.PollBudget <= 0 {
		o.PollBudget = 5 * time.Minute
	}
	if o.ScratchDir == "" {
		o.ScratchDir = os.TempDir()
	}
	if o.ShotSeconds <= 0 {
		o.ShotSeconds = 3
	}
	if o.FadeSeconds <= 0 || o.FadeSeconds >= o.ShotSeconds {
		o.FadeSeconds = 0.5
	}
	return o
}

func orNop(logger *infra.Logger) *infra.Logger {
	if logger != nil {
		return logger
	}
	l := infra.Logger(zerolog.New(io.Discard))
	return &l
}
