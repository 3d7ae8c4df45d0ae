// Package stage holds one queue worker per pipeline topic. Workers call adapters and object
// storage and report their results as JSON; entity state is left to the orchestrator.
package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelforge/internal/adapters"
	"reelforge/internal/config"
	"reelforge/internal/models"
	"reelforge/internal/queue"
	"reelforge/internal/repository"
)

// Timeouts bound every adapter call.
type Timeouts struct {
	Text    time.Duration
	Speech  time.Duration
	Image   time.Duration
	Compose time.Duration
	Storage time.Duration
	Upload  time.Duration
}

func TimeoutsFrom(cfg config.AdapterConfig) Timeouts {
	return Timeouts{
		Text:    cfg.TextTimeout,
		Speech:  cfg.SpeechTimeout,
		Image:   cfg.ImageTimeout,
		Compose: cfg.ComposeTimeout,
		Storage: cfg.StorageTimeout,
		Upload:  cfg.UploadTimeout,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := func(d, fallback time.Duration) time.Duration {
		if d <= 0 {
			return fallback
		}
		return d
	}
	return Timeouts{
		Text:    def(t.Text, 90*time.Second),
		Speech:  def(t.Speech, 2*time.Minute),
		Image:   def(t.Image, 2*time.Minute),
		Compose: def(t.Compose, 10*time.Minute),
		Storage: def(t.Storage, time.Minute),
		Upload:  def(t.Upload, 15*time.Minute),
	}
}

// Deps carries everything the workers need.
type Deps struct {
	Scripts  repository.ScriptRepository
	Videos   repository.VideoRepository
	Accounts repository.PlatformAccountRepository

	Text     adapters.TextGenerator
	Speech   adapters.SpeechSynthesizer
	Images   adapters.ImageGenerator
	Composer adapters.Composer
	Store    adapters.ObjectStore
	Platform adapters.VideoPlatform

	// TextModel selects the tokenizer used for script size logging.
	TextModel string
	Timeouts  Timeouts
	Logger    *zap.Logger
}

// Workers builds one worker per topic.
func Workers(d Deps) []queue.Worker {
	d.Timeouts = d.Timeouts.withDefaults()
	return []queue.Worker{
		&ScriptWorker{deps: d, logger: d.Logger.Named("ScriptWorker")},
		&AudioWorker{deps: d, logger: d.Logger.Named("AudioWorker")},
		&ThumbnailWorker{deps: d, logger: d.Logger.Named("ThumbnailWorker")},
		&RenderWorker{deps: d, logger: d.Logger.Named("RenderWorker")},
		&PublishWorker{deps: d, logger: d.Logger.Named("PublishWorker")},
	}
}

// call runs fn under its own deadline.
func call[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

// loadVideo fetches the video a job refers to. A missing or already failed video is terminal.
func loadVideo(ctx context.Context, videos repository.VideoRepository, id uuid.UUID) (*models.Video, error) {
	if id == uuid.Nil {
		return nil, Permanent(fmt.Errorf("%w: missing video id", models.ErrInvalidInput))
	}
	v, err := videos.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, Permanent(fmt.Errorf("video %s: %w", id, err))
		}
		return nil, err
	}
	if v.Status == models.VideoFailed {
		return nil, Permanent(fmt.Errorf("%w: video %s already failed", models.ErrInvalidState, id))
	}
	return v, nil
}

func loadScript(ctx context.Context, scripts repository.ScriptRepository, id uuid.UUID) (*models.Script, error) {
	s, err := scripts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, Permanent(fmt.Errorf("script %s: %w", id, err))
		}
		return nil, err
	}
	return s, nil
}

func assetKey(kind string, v *models.Video, jobID uuid.UUID, ext string) string {
	return fmt.Sprintf("%s/%s/%s/%s.%s", kind, v.UserID, v.ID, jobID, ext)
}
