package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"reelforge/internal/adapters"
	"reelforge/internal/models"
)

const (
	maxBackgroundImages = 5
	backgroundSize      = "1792x1024"
)

type RenderWorker struct {
	deps   Deps
	logger *zap.Logger
}

func (w *RenderWorker) Topic() models.Topic { return models.TopicVideo }

func (w *RenderWorker) Process(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := Decode[RenderPayload](job.Payload)
	if err != nil {
		return nil, err
	}
	if p.AudioRef == "" {
		return nil, Permanent(fmt.Errorf("%w: render requires an audio ref", models.ErrInvalidInput))
	}
	if !p.Style.Valid() {
		return nil, Permanent(fmt.Errorf("%w: video style %q", models.ErrInvalidInput, p.Style))
	}
	video, err := loadVideo(ctx, w.deps.Videos, p.VideoID)
	if err != nil {
		return nil, err
	}
	if video.VideoRef != nil {
		w.logger.Info("Video already rendered, skipping", zap.Stringer("video_id", video.ID))
		var d float64
		if video.Duration != nil {
			d = *video.Duration
		}
		return encode(RenderOutput{VideoRef: *video.VideoRef, Duration: d})
	}

	script, err := loadScript(ctx, w.deps.Scripts, video.ScriptID)
	if err != nil {
		return nil, err
	}
	audio, err := call(ctx, w.deps.Timeouts.Storage, func(ctx context.Context) ([]byte, error) {
		return w.deps.Store.Get(ctx, p.AudioRef)
	})
	if err != nil {
		return nil, fmt.Errorf("load audio %s: %w", p.AudioRef, err)
	}

	images, err := w.backgrounds(ctx, script)
	if err != nil {
		return nil, err
	}

	type composed struct {
		data     []byte
		duration float64
	}
	out, err := call(ctx, w.deps.Timeouts.Compose, func(ctx context.Context) (composed, error) {
		data, d, err := w.deps.Composer.Compose(ctx, adapters.ComposeRequest{
			Audio:  audio,
			Images: images,
			Script: script.Content,
			Style:  p.Style,
		})
		return composed{data: data, duration: d}, err
	})
	if err != nil {
		return nil, fmt.Errorf("compose video %s: %w", video.ID, err)
	}

	key := assetKey("videos", video, job.ID, "mp4")
	if _, err := call(ctx, w.deps.Timeouts.Storage, func(ctx context.Context) (string, error) {
		return w.deps.Store.Put(ctx, key, out.data, "video/mp4")
	}); err != nil {
		return nil, fmt.Errorf("store video %s: %w", key, err)
	}

	w.logger.Info("Video rendered",
		zap.Stringer("video_id", video.ID),
		zap.String("video_ref", key),
		zap.Float64("duration", out.duration),
		zap.Int("scenes", len(images)),
	)
	return encode(RenderOutput{VideoRef: key, Duration: out.duration})
}

// backgrounds generates one image per paragraph in parallel, keeping paragraph order.
func (w *RenderWorker) backgrounds(ctx context.Context, script *models.Script) ([][]byte, error) {
	scenes := Paragraphs(script.Content, maxBackgroundImages)
	if len(scenes) == 0 {
		scenes = []string{script.Niche}
	}
	images := make([][]byte, len(scenes))

	g, gctx := errgroup.WithContext(ctx)
	for i, scene := range scenes {
		g.Go(func() error {
			img, err := call(gctx, w.deps.Timeouts.Image, func(ctx context.Context) ([]byte, error) {
				return w.deps.Images.Generate(ctx, backgroundPrompt(script.Niche, scene), backgroundSize)
			})
			if err != nil {
				return fmt.Errorf("background %d: %w", i, err)
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

// Paragraphs splits text on blank lines and returns at most limit non-empty paragraphs.
func Paragraphs(text string, limit int) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		out = append(out, p)
		if len(out) == limit {
			break
		}
	}
	return out
}

func backgroundPrompt(niche, scene string) string {
	const maxScene = 400
	if len(scene) > maxScene {
		scene = scene[:maxScene]
	}
	return fmt.Sprintf("Cinematic background image for a %s video. Scene: %s. No text, no watermark.", niche, scene)
}
