package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelforge/internal/models"
	"reelforge/internal/queue"
	"reelforge/internal/repository"
	"reelforge/internal/stage"
)

// Handlers are idempotent: the queue redelivers a job whose handler failed, and a job may be
// delivered more than once.

func (o *Orchestrator) onScriptSucceeded(ctx context.Context, job *models.Job, output json.RawMessage) error {
	p, err := stage.Decode[stage.ScriptPayload](job.Payload)
	if err != nil {
		return err
	}
	out, err := stage.Decode[stage.ScriptOutput](output)
	if err != nil {
		return err
	}
	updated, err := o.scripts.MarkGenerated(ctx, p.ScriptID, out.Title, out.Content)
	if errors.Is(err, models.ErrNotFound) {
		o.logger.Warn("Script vanished before it was generated", zap.Stringer("script_id", p.ScriptID))
		return nil
	}
	if err != nil {
		return err
	}
	if !updated {
		o.logger.Debug("Script already final, output ignored", zap.Stringer("script_id", p.ScriptID))
		return nil
	}
	o.logger.Info("Script generated", zap.Stringer("script_id", p.ScriptID), zap.Stringer("job_id", job.ID))
	return nil
}

func (o *Orchestrator) onScriptFailed(ctx context.Context, job *models.Job, cause error) error {
	p, err := stage.Decode[stage.ScriptPayload](job.Payload)
	if err != nil {
		o.logger.Error("Dropping failed script job with unreadable payload", zap.Stringer("job_id", job.ID), zap.Error(err))
		return nil
	}
	log := o.logger.With(zap.Stringer("script_id", p.ScriptID), zap.Stringer("job_id", job.ID))

	if _, err := o.scripts.MarkFailed(ctx, p.ScriptID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("Script vanished before it failed")
			return nil
		}
		return err
	}
	script, err := o.scripts.Get(ctx, p.ScriptID)
	if err != nil {
		return err
	}
	if script.Status != models.ScriptFailed {
		log.Info("Late script failure ignored", zap.String("status", string(script.Status)))
		return nil
	}

	refunded, err := o.addRefund(ctx, script.UserID, o.pricing.ScriptCost, "refund: script generation failed",
		refundRef("refund:script:%s", script.ID), "script_failed")
	if err != nil {
		return err
	}
	log.Warn("Script generation failed", zap.Bool("refunded", refunded), zap.NamedError("cause", cause))
	return nil
}

func (o *Orchestrator) onAudioSucceeded(ctx context.Context, job *models.Job, output json.RawMessage) error {
	p, err := stage.Decode[stage.AudioPayload](job.Payload)
	if err != nil {
		return err
	}
	out, err := stage.Decode[stage.AudioOutput](output)
	if err != nil {
		return err
	}
	log := o.logger.With(zap.Stringer("video_id", p.VideoID), zap.Stringer("job_id", job.ID))

	recorded := false
	v, err := o.videos.Update(ctx, p.VideoID, func(v *models.Video) error {
		if v.Status.IsTerminal() || v.AudioRef != nil {
			return repository.ErrNoChange
		}
		v.AudioRef = &out.AudioRef
		v.AudioDuration = &out.Duration
		recorded = true
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		log.Info("Video deleted, audio output dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if v.Status.IsTerminal() {
		log.Info("Late audio output ignored", zap.String("status", string(v.Status)))
		return nil
	}
	if recorded {
		o.emit(ctx, v, models.TopicAudio, nil, false)
	}
	if v.VideoRef != nil || v.RenderJobID != nil {
		log.Debug("Render already queued")
		return nil
	}

	// Render always uses the recorded audio, which may come from an earlier delivery.
	renderJobID, err := o.queue.Enqueue(ctx, models.TopicVideo, stage.RenderPayload{
		VideoID:  v.ID,
		AudioRef: *v.AudioRef,
		Style:    v.VideoStyle,
	}, queue.Policy{})
	if err != nil {
		return err
	}
	_, err = o.videos.Update(ctx, v.ID, func(v *models.Video) error {
		if v.RenderJobID != nil {
			return repository.ErrNoChange
		}
		v.RenderJobID = &renderJobID
		return nil
	})
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	log.Info("Audio recorded, render queued", zap.String("audio_ref", *v.AudioRef), zap.Stringer("render_job_id", renderJobID))
	return nil
}

func (o *Orchestrator) onRenderSucceeded(ctx context.Context, job *models.Job, output json.RawMessage) error {
	p, err := stage.Decode[stage.RenderPayload](job.Payload)
	if err != nil {
		return err
	}
	out, err := stage.Decode[stage.RenderOutput](output)
	if err != nil {
		return err
	}
	return o.recordOutput(ctx, job, p.VideoID, func(v *models.Video) bool {
		if v.VideoRef != nil {
			return false
		}
		v.VideoRef = &out.VideoRef
		v.Duration = &out.Duration
		return true
	})
}

func (o *Orchestrator) onThumbnailSucceeded(ctx context.Context, job *models.Job, output json.RawMessage) error {
	p, err := stage.Decode[stage.ThumbnailPayload](job.Payload)
	if err != nil {
		return err
	}
	out, err := stage.Decode[stage.ThumbnailOutput](output)
	if err != nil {
		return err
	}
	return o.recordOutput(ctx, job, p.VideoID, func(v *models.Video) bool {
		if v.ThumbnailRef != nil {
			return false
		}
		v.ThumbnailRef = &out.ThumbnailRef
		return true
	})
}

// recordOutput applies one branch result under the row lock and completes the video once both
// the render and the thumbnail are present.
func (o *Orchestrator) recordOutput(ctx context.Context, job *models.Job, videoID uuid.UUID, apply func(v *models.Video) bool) error {
	log := o.logger.With(zap.Stringer("video_id", videoID), zap.String("stage", string(job.Topic)))

	recorded, completed := false, false
	v, err := o.videos.Update(ctx, videoID, func(v *models.Video) error {
		if v.Status.IsTerminal() || !apply(v) {
			return repository.ErrNoChange
		}
		recorded = true
		if v.ReadyToComplete() {
			v.Status = models.VideoCompleted
			completed = true
		}
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		log.Info("Video deleted, output dropped")
		return nil
	}
	if err != nil {
		return err
	}
	if !recorded {
		log.Debug("Output ignored", zap.String("status", string(v.Status)))
		return nil
	}

	o.emit(ctx, v, job.Topic, nil, false)
	if completed {
		log.Info("Video completed")
	}
	return nil
}

type videoRef struct {
	VideoID uuid.UUID `json:"videoId"`
}

func (o *Orchestrator) onStageFailed(ctx context.Context, job *models.Job, cause error) error {
	p, err := stage.Decode[videoRef](job.Payload)
	if err != nil {
		o.logger.Error("Dropping failed job with unreadable payload", zap.Stringer("job_id", job.ID), zap.Error(err))
		return nil
	}
	_, err = o.failVideo(ctx, p.VideoID, job.Topic, cause)
	return err
}

// failVideo moves the video to FAILED and refunds the reserved credits when no stage produced
// anything. It is safe to call repeatedly: the refund reference dedupes the credit.
func (o *Orchestrator) failVideo(ctx context.Context, videoID uuid.UUID, stageTopic models.Topic, cause error) (bool, error) {
	log := o.logger.With(zap.Stringer("video_id", videoID), zap.String("stage", string(stageTopic)))

	changed := false
	v, err := o.videos.Update(ctx, videoID, func(v *models.Video) error {
		if v.Status.IsTerminal() {
			return repository.ErrNoChange
		}
		v.Status = models.VideoFailed
		changed = true
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		log.Info("Video deleted, failure dropped", zap.NamedError("cause", cause))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if v.Status != models.VideoFailed {
		log.Info("Late failure ignored", zap.String("status", string(v.Status)), zap.NamedError("cause", cause))
		return false, nil
	}

	refunded := false
	var refundErr error
	if !v.HasAnyOutput() {
		refunded, refundErr = o.addRefund(ctx, v.UserID, v.ReservedCredits, "refund: video generation failed",
			refundRef("refund:%s", v.ID), "video_failed")
	}
	if changed {
		o.emit(ctx, v, stageTopic, cause, refunded)
		log.Warn("Video failed",
			zap.Bool("had_output", v.HasAnyOutput()),
			zap.Bool("refunded", refunded),
			zap.NamedError("cause", cause),
		)
	}
	return refunded, refundErr
}

func (o *Orchestrator) onPublishSucceeded(ctx context.Context, job *models.Job, output json.RawMessage) error {
	p, err := stage.Decode[stage.PublishPayload](job.Payload)
	if err != nil {
		return err
	}
	out, err := stage.Decode[stage.PublishOutput](output)
	if err != nil {
		return err
	}
	log := o.logger.With(zap.Stringer("video_id", p.VideoID), zap.Stringer("job_id", job.ID))

	recorded := false
	v, err := o.videos.Update(ctx, p.VideoID, func(v *models.Video) error {
		if v.PublishedRef != nil {
			return repository.ErrNoChange
		}
		status := out.Status
		v.PublishedRef = &out.ExternalID
		v.PublishStatus = &status
		recorded = true
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		log.Warn("Video deleted after upload", zap.String("external_id", out.ExternalID))
		return nil
	}
	if err != nil {
		return err
	}
	if recorded {
		o.emit(ctx, v, models.TopicPublish, nil, false)
		log.Info("Video published", zap.String("external_id", out.ExternalID), zap.String("status", string(out.Status)))
	}
	return nil
}

func (o *Orchestrator) onPublishFailed(ctx context.Context, job *models.Job, cause error) error {
	p, err := stage.Decode[stage.PublishPayload](job.Payload)
	if err != nil {
		o.logger.Error("Dropping failed publish job with unreadable payload", zap.Stringer("job_id", job.ID), zap.Error(err))
		return nil
	}
	refunded, err := o.addRefund(ctx, p.UserID, p.Charged, "refund: video publish failed",
		refundRef("refund:publish:%s:%s", p.VideoID, job.ID), "publish_failed")
	if err != nil {
		return err
	}
	if err := o.clearPublishRequest(ctx, p.VideoID); err != nil {
		return err
	}

	if v, err := o.videos.Get(ctx, p.VideoID); err == nil {
		o.emit(ctx, v, models.TopicPublish, cause, refunded)
	}
	o.logger.Warn("Publish failed",
		zap.Stringer("video_id", p.VideoID),
		zap.Stringer("job_id", job.ID),
		zap.Bool("refunded", refunded),
		zap.NamedError("cause", cause),
	)
	return nil
}
