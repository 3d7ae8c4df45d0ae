// Package composer renders narrated slideshow videos with ffmpeg.
package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"reelforge/internal/adapters"
	"reelforge/internal/models"
)

const (
	defaultWidth  = 1280
	defaultHeight = 720
	frameRate     = 30
	fadeSeconds   = 0.5
)

type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	width       int
	height      int
	logger      *zap.Logger
}

var _ adapters.Composer = (*FFmpeg)(nil)

// New returns a composer. An empty workDir uses the OS temp dir.
func New(ffmpegPath, ffprobePath, workDir string, logger *zap.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		workDir:     workDir,
		width:       defaultWidth,
		height:      defaultHeight,
		logger:      logger.Named("FFmpegComposer"),
	}
}

func (c *FFmpeg) Compose(ctx context.Context, req adapters.ComposeRequest) (video []byte, duration float64, err error) {
	start := time.Now()
	defer func() { adapters.Observe("ffmpeg", "compose", start, err) }()

	if len(req.Audio) == 0 {
		return nil, 0, fmt.Errorf("%w: compose needs audio", models.ErrInvalidInput)
	}
	if len(req.Images) == 0 {
		return nil, 0, fmt.Errorf("%w: compose needs at least one image", models.ErrInvalidInput)
	}

	dir, err := os.MkdirTemp(c.workDir, "compose-*")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	audioPath := filepath.Join(dir, "narration.mp3")
	if err := os.WriteFile(audioPath, req.Audio, 0o644); err != nil {
		return nil, 0, fmt.Errorf("failed to write audio: %w", err)
	}
	imagePaths := make([]string, len(req.Images))
	for i, img := range req.Images {
		imagePaths[i] = filepath.Join(dir, fmt.Sprintf("scene_%02d.png", i))
		if err := os.WriteFile(imagePaths[i], img, 0o644); err != nil {
			return nil, 0, fmt.Errorf("failed to write image %d: %w", i, err)
		}
	}

	audioDuration, err := c.probeDuration(ctx, audioPath)
	if err != nil {
		return nil, 0, err
	}

	outPath := filepath.Join(dir, "video.mp4")
	args := c.buildArgs(imagePaths, audioPath, outPath, audioDuration, req.Style)
	c.logger.Debug("Running ffmpeg", zap.Int("scenes", len(imagePaths)), zap.Float64("audio_seconds", audioDuration))
	if err := c.run(ctx, c.ffmpegPath, args...); err != nil {
		return nil, 0, err
	}

	duration, err = c.probeDuration(ctx, outPath)
	if err != nil {
		return nil, 0, err
	}
	video, err = os.ReadFile(outPath)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read rendered video: %w", err)
	}
	c.logger.Info("Video composed",
		zap.Int("bytes", len(video)),
		zap.Float64("duration", duration),
		zap.Duration("elapsed", time.Since(start)),
	)
	return video, duration, nil
}

// buildArgs shows every image for an equal share of the narration and concatenates the scenes.
func (c *FFmpeg) buildArgs(images []string, audioPath, outPath string, audioDuration float64, style models.VideoStyle) []string {
	scene := audioDuration / float64(len(images))
	if scene <= 0 {
		scene = 1
	}
	sceneStr := strconv.FormatFloat(scene, 'f', 3, 64)

	args := []string{"-y", "-hide_banner", "-loglevel", "error"}
	for _, img := range images {
		args = append(args, "-loop", "1", "-t", sceneStr, "-i", img)
	}
	args = append(args, "-i", audioPath)

	var filter strings.Builder
	for i := range images {
		fmt.Fprintf(&filter, "[%d:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d%s[s%d];",
			i, c.width, c.height, c.width, c.height, frameRate, styleFilter(style, scene, c.width, c.height), i)
	}
	for i := range images {
		fmt.Fprintf(&filter, "[s%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0,format=yuv420p[v]", len(images))

	return append(args,
		"-filter_complex", filter.String(),
		"-map", "[v]",
		"-map", fmt.Sprintf("%d:a", len(images)),
		"-c:v", "libx264",
		"-c:a", "aac",
		"-shortest",
		"-movflags", "+faststart",
		outPath,
	)
}

func styleFilter(style models.VideoStyle, scene float64, width, height int) string {
	switch style {
	case models.VideoStyleModern:
		if scene <= 2*fadeSeconds {
			return ""
		}
		return fmt.Sprintf(",fade=t=in:st=0:d=%.1f,fade=t=out:st=%.3f:d=%.1f", fadeSeconds, scene-fadeSeconds, fadeSeconds)
	case models.VideoStyleDynamic:
		return fmt.Sprintf(",zoompan=z='min(zoom+0.0015,1.2)':d=1:s=%dx%d:fps=%d", width, height, frameRate)
	default:
		return ""
	}
}

func (c *FFmpeg) probeDuration(ctx context.Context, path string) (float64, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.Stdout = &out
	if err := c.wait(ctx, cmd, filepath.Base(path)); err != nil {
		return 0, err
	}
	return parseDuration(out.String())
}

func parseDuration(raw string) (float64, error) {
	d, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: unreadable media duration %q", models.ErrTerminalUpstream, strings.TrimSpace(raw))
	}
	return d, nil
}

func (c *FFmpeg) run(ctx context.Context, bin string, args ...string) error {
	return c.wait(ctx, exec.CommandContext(ctx, bin, args...), "ffmpeg")
}

// wait runs cmd and maps its failure: cancellation is transient, a non-zero exit on the same
// input would repeat and is terminal.
func (c *FFmpeg) wait(ctx context.Context, cmd *exec.Cmd, what string) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s interrupted: %v", models.ErrTransientUpstream, what, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %s exited with %d: %s", models.ErrTerminalUpstream, what, exitErr.ExitCode(), tail(stderr.String(), 500))
	}
	return fmt.Errorf("%s failed to start: %w", what, err)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
