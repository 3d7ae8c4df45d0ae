package stage

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"reelforge/internal/models"
)

const thumbnailSize = "1792x1024"

type ThumbnailWorker struct {
	deps   Deps
	logger *zap.Logger
}

func (w *ThumbnailWorker) Topic() models.Topic { return models.TopicThumbnail }

func (w *ThumbnailWorker) Process(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := Decode[ThumbnailPayload](job.Payload)
	if err != nil {
		return nil, err
	}
	if !p.Style.Valid() {
		return nil, Permanent(fmt.Errorf("%w: thumbnail style %q", models.ErrInvalidInput, p.Style))
	}
	video, err := loadVideo(ctx, w.deps.Videos, p.VideoID)
	if err != nil {
		return nil, err
	}
	if video.ThumbnailRef != nil {
		w.logger.Info("Thumbnail already recorded, skipping", zap.Stringer("video_id", video.ID))
		return encode(ThumbnailOutput{ThumbnailRef: *video.ThumbnailRef})
	}

	script, err := loadScript(ctx, w.deps.Scripts, video.ScriptID)
	if err != nil {
		return nil, err
	}

	img, err := call(ctx, w.deps.Timeouts.Image, func(ctx context.Context) ([]byte, error) {
		return w.deps.Images.Generate(ctx, thumbnailPrompt(script, p.Style), thumbnailSize)
	})
	if err != nil {
		return nil, fmt.Errorf("generate thumbnail for video %s: %w", video.ID, err)
	}

	key := assetKey("thumbnails", video, job.ID, "png")
	if _, err := call(ctx, w.deps.Timeouts.Storage, func(ctx context.Context) (string, error) {
		return w.deps.Store.Put(ctx, key, img, "image/png")
	}); err != nil {
		return nil, fmt.Errorf("store thumbnail %s: %w", key, err)
	}

	w.logger.Info("Thumbnail generated", zap.Stringer("video_id", video.ID), zap.String("thumbnail_ref", key))
	return encode(ThumbnailOutput{ThumbnailRef: key})
}

func thumbnailPrompt(s *models.Script, style models.ThumbnailStyle) string {
	var look string
	switch style {
	case models.ThumbnailClickbait:
		look = "bold saturated colors, dramatic lighting, expressive subject, high contrast"
	case models.ThumbnailProfessional:
		look = "clean composition, balanced lighting, polished editorial look"
	default:
		look = "minimal layout, lots of negative space, muted palette"
	}
	return fmt.Sprintf("Video thumbnail for %q about %s. Style: %s. No text.", s.Title, s.Niche, look)
}
