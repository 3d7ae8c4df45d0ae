package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"reelforge/internal/models"
)

// secondsPerWord approximates narration pace when the audio itself is not probed.
const secondsPerWord = 0.4

type AudioWorker struct {
	deps   Deps
	logger *zap.Logger
}

func (w *AudioWorker) Topic() models.Topic { return models.TopicAudio }

func (w *AudioWorker) Process(ctx context.Context, job *models.Job) (json.RawMessage, error) {
	p, err := Decode[AudioPayload](job.Payload)
	if err != nil {
		return nil, err
	}
	video, err := loadVideo(ctx, w.deps.Videos, p.VideoID)
	if err != nil {
		return nil, err
	}
	if video.AudioRef != nil {
		w.logger.Info("Audio already recorded, skipping", zap.Stringer("video_id", video.ID))
		var d float64
		if video.AudioDuration != nil {
			d = *video.AudioDuration
		}
		return encode(AudioOutput{AudioRef: *video.AudioRef, Duration: d})
	}

	script, err := loadScript(ctx, w.deps.Scripts, video.ScriptID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(script.Content) == "" {
		return nil, Permanent(fmt.Errorf("%w: script %s has no content", models.ErrInvalidInput, script.ID))
	}

	voice := p.Voice
	if voice == "" {
		voice = models.DefaultVoice
	}
	audio, err := call(ctx, w.deps.Timeouts.Speech, func(ctx context.Context) ([]byte, error) {
		return w.deps.Speech.Synthesize(ctx, script.Content, voice)
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize video %s: %w", video.ID, err)
	}

	key := assetKey("audio", video, job.ID, "mp3")
	if _, err := call(ctx, w.deps.Timeouts.Storage, func(ctx context.Context) (string, error) {
		return w.deps.Store.Put(ctx, key, audio, "audio/mpeg")
	}); err != nil {
		return nil, fmt.Errorf("store audio %s: %w", key, err)
	}

	duration := EstimateDuration(script.Content)
	w.logger.Info("Audio synthesized",
		zap.Stringer("video_id", video.ID),
		zap.String("audio_ref", key),
		zap.Float64("duration", duration),
	)
	return encode(AudioOutput{AudioRef: key, Duration: duration})
}

// EstimateDuration returns the narration length in seconds for text.
func EstimateDuration(text string) float64 {
	return float64(len(strings.Fields(text))) * secondsPerWord
}
