// Package transcode stitches story stills into a single video with ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediagen/internal/infra"
)

// ErrStitchFailed prefixes every non-zero ffmpeg exit.
var ErrStitchFailed = errors.New("stitch failed")

const stderrTail = 1500

// Spec describes one stitch.
type Spec struct {
	Stills      []string
	Output      string
	Width       int
	Height      int
	FPS         int
	ShotSeconds float64
	FadeSeconds float64
}

// Stitcher turns stills into a video file.
type Stitcher interface {
	Stitch(ctx context.Context, spec Spec) error
}

// FFmpeg runs the ffmpeg binary.
type FFmpeg struct {
	path   string
	logger *infra.Logger
}

// NewFFmpeg returns a Stitcher that shells out to the binary at path.
func NewFFmpeg(path string, logger *infra.Logger) *FFmpeg {
	if strings.TrimSpace(path) == "" {
		path = "ffmpeg"
	}
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &FFmpeg{path: path, logger: logger}
}

// Stitch runs ffmpeg and reports the stderr tail on failure.
func (f *FFmpeg) Stitch(ctx context.Context, spec Spec) error {
	args, err := BuildArgs(spec)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		tail := tailString(strings.TrimSpace(stderr.String()), stderrTail)
		if tail == "" {
			tail = err.Error()
		}
		return fmt.Errorf("%w: %s", ErrStitchFailed, tail)
	}
	if _, err := os.Stat(spec.Output); err != nil {
		return fmt.Errorf("%w: output missing: %v", ErrStitchFailed, err)
	}
	f.logger.Debug().
		Int("shots", len(spec.Stills)).
		Dur("elapsed", time.Since(start)).
		Str("output", spec.Output).
		Msg("transcode: stitched story")
	return nil
}

// Duration returns the length of the stitched video in seconds.
func Duration(spec Spec) float64 {
	n := float64(len(spec.Stills))
	if n == 0 {
		return 0
	}
	return n*spec.ShotSeconds - (n-1)*spec.FadeSeconds
}

// ShotFrames is the number of output frames each still is held for.
func ShotFrames(spec Spec) int {
	return int(math.Round(spec.ShotSeconds * float64(spec.FPS)))
}

// BuildArgs renders the ffmpeg argument list. Each still is read as a single
// frame and zoompan expands it to ShotFrames output frames with a slow centre
// zoom; consecutive shots are cross-faded.
func BuildArgs(spec Spec) ([]string, error) {
	n := len(spec.Stills)
	switch {
	case n == 0:
		return nil, errors.New("transcode: at least one still is required")
	case spec.Output == "":
		return nil, errors.New("transcode: output path is required")
	case spec.Width <= 0 || spec.Height <= 0 || spec.FPS <= 0:
		return nil, fmt.Errorf("transcode: invalid geometry %dx%d@%d", spec.Width, spec.Height, spec.FPS)
	case spec.ShotSeconds <= 0:
		return nil, errors.New("transcode: shot duration must be positive")
	case n > 1 && (spec.FadeSeconds <= 0 || spec.FadeSeconds >= spec.ShotSeconds):
		return nil, errors.New("transcode: fade must be positive and shorter than a shot")
	}

	frames := ShotFrames(spec)
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, still := range spec.Stills {
		args = append(args, "-i", still)
	}

	var graph []string
	for i := range spec.Stills {
		graph = append(graph, fmt.Sprintf(
			"[%d:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,"+
				"zoompan=z='min(zoom+0.0015,1.2)':d=%d:x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':s=%dx%d:fps=%d,"+
				"trim=end_frame=%d,setpts=PTS-STARTPTS,setsar=1,format=yuv420p[v%d]",
			i, spec.Width*2, spec.Height*2, spec.Width*2, spec.Height*2,
			frames, spec.Width, spec.Height, spec.FPS, frames, i,
		))
	}
	last := "v0"
	for k := 1; k < n; k++ {
		offset := float64(k) * (spec.ShotSeconds - spec.FadeSeconds)
		out := fmt.Sprintf("x%d", k)
		graph = append(graph, fmt.Sprintf(
			"[%s][v%d]xfade=transition=fade:duration=%s:offset=%s[%s]",
			last, k, formatSeconds(spec.FadeSeconds), formatSeconds(offset), out,
		))
		last = out
	}

	args = append(args,
		"-filter_complex", strings.Join(graph, ";"),
		"-map", "["+last+"]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(spec.FPS),
		"-movflags", "+faststart",
		spec.Output,
	)
	return args, nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
