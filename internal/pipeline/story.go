package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"mediagen/internal/domain"
	"mediagen/internal/providers/generation"
	"mediagen/internal/storage"
	"mediagen/internal/transcode"
)

const shotBoilerplate = "consistent subject and color palette across shots, cinematic lighting, highly detailed, sharp focus"

// Progress reserved for the stitch and persist steps.
const (
	storyProgressStart    = 5
	storyProgressShots    = 80
	storyProgressStitched = 90
)

// shotPrompt joins the job directive, one shot fragment and the consistency
// boilerplate.
func shotPrompt(directive, fragment string) string {
	return strings.TrimRight(strings.TrimSpace(directive), ". ") + ". " +
		strings.TrimRight(strings.TrimSpace(fragment), ". ") + ". " + shotBoilerplate
}

// storyProgress is the progress after shot k of n.
func storyProgress(k, n int) int {
	if n <= 0 {
		return storyProgressStart
	}
	return storyProgressStart + storyProgressShots*k/n
}

// runStory generates every shot into scratch and stitches them. Any shot
// failure aborts the job; no partial video is produced.
func (o *Orchestrator) runStory(ctx context.Context, job *domain.Job, scratch string) (string, map[string]any, error) {
	if job.Story == nil {
		return "", nil, errors.New("story parameters missing")
	}
	params := *job.Story
	params.Normalize()
	n := len(params.ShotList)
	o.advance(ctx, job.ID, storyProgressStart)

	stills := make([]string, 0, n)
	for i, fragment := range params.ShotList {
		k := i + 1
		still, err := o.generateShot(ctx, job, fragment, k, scratch)
		if err != nil {
			if errors.Is(err, generation.ErrStopped) {
				return "", nil, err
			}
			return "", nil, fmt.Errorf("Shot %d failed: %w", k, err)
		}
		stills = append(stills, still)
		o.advance(ctx, job.ID, storyProgress(k, n))
		o.logger.Debug().Str("job_id", job.ID).Int("shot", k).Int("of", n).Msg("worker: shot ready")
	}

	spec := transcode.Spec{
		Stills:      stills,
		Output:      filepath.Join(scratch, "story.mp4"),
		Width:       params.Width,
		Height:      params.Height,
		FPS:         params.FPS,
		ShotSeconds: o.opts.ShotSeconds,
		FadeSeconds: o.opts.FadeSeconds,
	}
	if err := o.stitcher.Stitch(ctx, spec); err != nil {
		return "", nil, err
	}
	o.advance(ctx, job.ID, storyProgressStitched)

	meta := map[string]any{
		"shots":            n,
		"fps":              params.FPS,
		"width":            params.Width,
		"height":           params.Height,
		"duration_seconds": transcode.Duration(spec),
	}
	return spec.Output, meta, nil
}

func (o *Orchestrator) generateShot(ctx context.Context, job *domain.Job, fragment string, k int, scratch string) (string, error) {
	resultURL, err := o.provider.Generate(ctx, generation.Request{
		Prompt:         shotPrompt(job.Directive.Prompt, fragment),
		NegativePrompt: job.Directive.NegativePrompt,
		SourceRef:      job.SourceRef,
		Strength:       job.Directive.Strength,
		Image:          true,
	}, generation.AwaitOptions{
		Interval: o.opts.PollInterval,
		Budget:   o.opts.PollBudget,
		BeforeTick: func(ctx context.Context) (bool, error) {
			return o.terminalJob(ctx, job.ID) != nil, nil
		},
	})
	if err != nil {
		return "", err
	}
	ext := storage.ExtensionFor("", resultURL)
	if ext == ".bin" || storage.IsVideo(resultURL) {
		ext = ".png"
	}
	dest := filepath.Join(scratch, fmt.Sprintf("shot-%02d%s", k, ext))
	if _, err := o.provider.Download(ctx, resultURL, dest); err != nil {
		return "", err
	}
	return dest, nil
}
