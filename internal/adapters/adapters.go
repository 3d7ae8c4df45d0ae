// Package adapters defines the narrow contracts the stage workers use to reach content providers,
// object storage and the video platform.
package adapters

import (
	"context"
	"time"

	"reelforge/internal/models"
)

// TextGenerator produces script text.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// SpeechSynthesizer turns narration text into encoded audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// ImageGenerator returns encoded image bytes for a prompt. Size is "WIDTHxHEIGHT".
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, size string) ([]byte, error)
}

// ComposeRequest is everything needed to render a video.
type ComposeRequest struct {
	Audio  []byte
	Images [][]byte
	Script string
	Style  models.VideoStyle
}

// Composer renders a video and reports its duration in seconds.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) ([]byte, float64, error)
}

// ObjectStore keeps generated assets. Keys are slash separated paths.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// UploadMetadata describes the video on the platform.
type UploadMetadata struct {
	Title       string
	Description string
	Tags        []string
}

// UploadResult is what the platform reports after accepting a video.
type UploadResult struct {
	ExternalID string
	Status     models.PublishStatus
}

// VideoPlatform publishes rendered videos. A non-nil scheduledAt uploads privately with a
// scheduled publish time.
type VideoPlatform interface {
	Upload(ctx context.Context, account models.PlatformAccount, video []byte, meta UploadMetadata, scheduledAt *time.Time) (UploadResult, error)
}
