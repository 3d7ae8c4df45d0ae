package stage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/models"
)

type ScriptPayload struct {
	ScriptID uuid.UUID `json:"scriptId"`
	Niche    string    `json:"niche"`
	Keywords []string  `json:"keywords"`
	Length   int       `json:"length"`
	Title    string    `json:"title,omitempty"`
}

type ScriptOutput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type AudioPayload struct {
	VideoID uuid.UUID `json:"videoId"`
	Voice   string    `json:"voice"`
}

type AudioOutput struct {
	AudioRef string  `json:"audioRef"`
	Duration float64 `json:"duration"`
}

type ThumbnailPayload struct {
	VideoID uuid.UUID             `json:"videoId"`
	Style   models.ThumbnailStyle `json:"style"`
}

type ThumbnailOutput struct {
	ThumbnailRef string `json:"thumbnailRef"`
}

type RenderPayload struct {
	VideoID  uuid.UUID         `json:"videoId"`
	AudioRef string            `json:"audioRef"`
	Style    models.VideoStyle `json:"style"`
}

type RenderOutput struct {
	VideoRef string  `json:"videoRef"`
	Duration float64 `json:"duration"`
}

type PublishPayload struct {
	VideoID     uuid.UUID  `json:"videoId"`
	UserID      uuid.UUID  `json:"userId"`
	Charged     int64      `json:"charged"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tags        []string   `json:"tags"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

type PublishOutput struct {
	ExternalID string               `json:"externalId"`
	Status     models.PublishStatus `json:"status"`
}

// Decode unmarshals a job payload or worker output. Malformed input is never retried.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, Permanent(fmt.Errorf("%w: malformed payload: %v", models.ErrInvalidInput, err))
	}
	return v, nil
}

func encode(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, Permanent(fmt.Errorf("encode output: %w", err))
	}
	return b, nil
}
