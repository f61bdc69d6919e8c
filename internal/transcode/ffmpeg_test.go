package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func testSpec(dir string, shots int) Spec {
	stills := make([]string, shots)
	for i := range stills {
		stills[i] = filepath.Join(dir, "shot-"+string(rune('1'+i))+".png")
	}
	return Spec{
		Stills:      stills,
		Output:      filepath.Join(dir, "story.mp4"),
		Width:       1280,
		Height:      720,
		FPS:         30,
		ShotSeconds: 3,
		FadeSeconds: 0.5,
	}
}

func TestBuildArgsCrossfadeChain(t *testing.T) {
	spec := testSpec("/tmp/job", 3)
	args, err := BuildArgs(spec)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	joined := strings.Join(args, " ")

	if n := strings.Count(joined, " -i "); n != 3 {
		t.Fatalf("inputs = %d, want 3", n)
	}
	var graph string
	for i, a := range args {
		if a == "-filter_complex" {
			graph = args[i+1]
		}
	}
	for _, want := range []string{
		"zoompan=z='min(zoom+0.0015,1.2)':d=90",
		"s=1280x720:fps=30,trim=end_frame=90,setpts=PTS-STARTPTS",
		"[v0][v1]xfade=transition=fade:duration=0.500:offset=2.500[x1]",
		"[x1][v2]xfade=transition=fade:duration=0.500:offset=5.000[x2]",
	} {
		if !strings.Contains(graph, want) {
			t.Fatalf("filter graph missing %q:\n%s", want, graph)
		}
	}
	if !strings.Contains(joined, "-map [x2] -c:v libx264 -pix_fmt yuv420p -r 30") {
		t.Fatalf("unexpected output args: %s", joined)
	}
	if args[len(args)-1] != spec.Output {
		t.Fatalf("output must be last, got %q", args[len(args)-1])
	}
	if got := Duration(spec); got != 8 {
		t.Fatalf("Duration = %v, want 8", got)
	}
}

// Each input must be a single frame: zoompan emits d frames per input frame,
// so looping the still would multiply the shot length.
func TestBuildArgsShotLengthMatchesDuration(t *testing.T) {
	spec := testSpec("/tmp/job", 4)
	args, err := BuildArgs(spec)
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-loop") || strings.Contains(joined, "-t ") {
		t.Fatalf("stills must not be looped: %s", joined)
	}

	var graph string
	for i, a := range args {
		if a == "-filter_complex" {
			graph = args[i+1]
		}
	}
	frames := ShotFrames(spec)
	if frames != 90 {
		t.Fatalf("ShotFrames = %d, want 90", frames)
	}
	if n := strings.Count(graph, fmt.Sprintf(":d=%d:", frames)); n != 4 {
		t.Fatalf("zoompan d=%d count = %d, want 4:\n%s", frames, n, graph)
	}
	if n := strings.Count(graph, fmt.Sprintf("trim=end_frame=%d,", frames)); n != 4 {
		t.Fatalf("trim count = %d, want 4:\n%s", n, graph)
	}

	fadeFrames := int(spec.FadeSeconds * float64(spec.FPS))
	total := len(spec.Stills)*frames - (len(spec.Stills)-1)*fadeFrames
	if want := int(Duration(spec) * float64(spec.FPS)); total != want {
		t.Fatalf("stitched frames = %d, want %d", total, want)
	}
	if Duration(spec) != 10.5 {
		t.Fatalf("Duration = %v, want 10.5", Duration(spec))
	}
}

func TestBuildArgsSingleShotHasNoCrossfade(t *testing.T) {
	args, err := BuildArgs(testSpec("/tmp/job", 1))
	if err != nil {
		t.Fatalf("BuildArgs: %v", err)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "xfade") || !strings.Contains(joined, "-map [v0]") {
		t.Fatalf("single shot args = %s", joined)
	}
}

func TestBuildArgsValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
	}{
		{name: "no stills", mutate: func(s *Spec) { s.Stills = nil }},
		{name: "no output", mutate: func(s *Spec) { s.Output = "" }},
		{name: "bad geometry", mutate: func(s *Spec) { s.Width = 0 }},
		{name: "fade too long", mutate: func(s *Spec) { s.FadeSeconds = 3 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			spec := testSpec("/tmp/job", 2)
			tc.mutate(&spec)
			if _, err := BuildArgs(spec); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestStitchReportsStderrOnFailure(t *testing.T) {
	bin := writeScript(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")
	dir := t.TempDir()

	err := NewFFmpeg(bin, nil).Stitch(context.Background(), testSpec(dir, 2))
	if !errors.Is(err, ErrStitchFailed) {
		t.Fatalf("err = %v, want ErrStitchFailed", err)
	}
	if !strings.Contains(err.Error(), "stitch failed: Invalid data found when processing input") {
		t.Fatalf("err = %q", err.Error())
	}
}

func TestStitchSucceedsWhenOutputWritten(t *testing.T) {
	bin := writeScript(t, "for a; do out=$a; done\n: > \"$out\"\n")
	dir := t.TempDir()
	spec := testSpec(dir, 2)

	if err := NewFFmpeg(bin, nil).Stitch(context.Background(), spec); err != nil {
		t.Fatalf("stitch: %v", err)
	}
	if _, err := os.Stat(spec.Output); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}
