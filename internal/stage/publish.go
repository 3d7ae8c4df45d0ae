package stage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"reelforge/internal/adapters"
	"reelforge/internal/models"
)

type PublishWorker struct {
	deps   Deps
	logger *zap.Logger
}

func (w *PublishWorker) Topic() models.Topic { return models.TopicPublish }

func (w *PublishWorker) Process(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := Decode[PublishPayload](job.Payload)
	if err != nil {
		return nil, err
	}
	video, err := loadVideo(ctx, w.deps.Videos, p.VideoID)
	if err != nil {
		return nil, err
	}
	if video.Status != models.VideoCompleted || video.VideoRef == nil {
		return nil, Permanent(fmt.Errorf("%w: video %s is %s", models.ErrInvalidState, video.ID, video.Status))
	}
	if video.PublishedRef != nil && video.PublishStatus != nil {
		w.logger.Info("Video already published, skipping", zap.Stringer("video_id", video.ID))
		return encode(PublishOutput{ExternalID: *video.PublishedRef, Status: *video.PublishStatus})
	}

	account, err := w.deps.Accounts.Get(ctx, video.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, Permanent(fmt.Errorf("user %s: %w", video.UserID, models.ErrPlatformNotConnected))
		}
		return nil, err
	}

	data, err := call(ctx, w.deps.Timeouts.Storage, func(ctx context.Context) ([]byte, error) {
		return w.deps.Store.Get(ctx, *video.VideoRef)
	})
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", *video.VideoRef, err)
	}

	res, err := call(ctx, w.deps.Timeouts.Upload, func(ctx context.Context) (adapters.UploadResult, error) {
		return w.deps.Platform.Upload(ctx, *account, data, adapters.UploadMetadata{
			Title:       p.Title,
			Description: p.Description,
			Tags:        p.Tags,
		}, p.ScheduledAt)
	})
	if err != nil {
		return nil, fmt.Errorf("upload video %s: %w", video.ID, err)
	}

	w.logger.Info("Video published",
		zap.Stringer("video_id", video.ID),
		zap.String("external_id", res.ExternalID),
		zap.String("status", string(res.Status)),
	)
	return encode(PublishOutput{ExternalID: res.ExternalID, Status: res.Status})
}
