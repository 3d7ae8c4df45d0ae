package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelforge/internal/models"
	"reelforge/internal/queue"
	"reelforge/internal/repository"
	"reelforge/internal/stage"
)

type ScriptRequest struct {
	Niche    string   `json:"niche"`
	Keywords []string `json:"keywords"`
	Length   int      `json:"length"`
	Title    string   `json:"title,omitempty"`
}

func (r *ScriptRequest) validate() error {
	r.Niche = strings.TrimSpace(r.Niche)
	r.Title = strings.TrimSpace(r.Title)
	keywords := make([]string, 0, len(r.Keywords))
	for _, k := range r.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	r.Keywords = keywords

	switch {
	case r.Niche == "":
		return fmt.Errorf("%w: niche is required", models.ErrInvalidInput)
	case len(r.Keywords) == 0:
		return fmt.Errorf("%w: at least one keyword is required", models.ErrInvalidInput)
	case r.Length < models.MinScriptLengthSeconds || r.Length > models.MaxScriptLengthSeconds:
		return fmt.Errorf("%w: length must be between %d and %d seconds",
			models.ErrInvalidInput, models.MinScriptLengthSeconds, models.MaxScriptLengthSeconds)
	}
	return nil
}

type VideoRequest struct {
	ScriptID       uuid.UUID             `json:"scriptId"`
	Voice          string                `json:"voice,omitempty"`
	VideoStyle     models.VideoStyle     `json:"videoStyle,omitempty"`
	ThumbnailStyle models.ThumbnailStyle `json:"thumbnailStyle,omitempty"`
}

func (r *VideoRequest) validate() error {
	if r.ScriptID == uuid.Nil {
		return fmt.Errorf("%w: scriptId is required", models.ErrInvalidInput)
	}
	if strings.TrimSpace(r.Voice) == "" {
		r.Voice = models.DefaultVoice
	}
	if r.VideoStyle == "" {
		r.VideoStyle = models.VideoStyleModern
	}
	if r.ThumbnailStyle == "" {
		r.ThumbnailStyle = models.ThumbnailProfessional
	}
	if !r.VideoStyle.Valid() {
		return fmt.Errorf("%w: unknown video style %q", models.ErrInvalidInput, r.VideoStyle)
	}
	if !r.ThumbnailStyle.Valid() {
		return fmt.Errorf("%w: unknown thumbnail style %q", models.ErrInvalidInput, r.ThumbnailStyle)
	}
	return nil
}

type PublishRequest struct {
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// RequestScript charges the script cost and queues generation.
func (o *Orchestrator) RequestScript(ctx context.Context, userID uuid.UUID, req ScriptRequest) (*models.Script, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	log := o.logger.With(zap.Stringer("user_id", userID))

	res, err := o.ledger.Deduct(ctx, userID, o.pricing.ScriptCost, "script generation")
	if err != nil {
		return nil, fmt.Errorf("charge script: %w", err)
	}
	if !res.OK {
		return nil, models.ErrInsufficientCredits
	}

	script := &models.Script{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     req.Title,
		Niche:     req.Niche,
		Keywords:  req.Keywords,
		Length:    req.Length,
		Status:    models.ScriptPending,
		CreatedAt: o.now(),
	}
	if err := o.scripts.Create(ctx, script); err != nil {
		o.refundScript(ctx, script)
		return nil, fmt.Errorf("create script: %w", err)
	}

	_, err = o.queue.Enqueue(ctx, models.TopicScript, stage.ScriptPayload{
		ScriptID: script.ID,
		Niche:    script.Niche,
		Keywords: script.Keywords,
		Length:   script.Length,
		Title:    script.Title,
	}, queue.Policy{})
	if err != nil {
		if _, mErr := o.scripts.MarkFailed(ctx, script.ID); mErr != nil {
			log.Error("Failed to mark script failed after enqueue error", zap.Error(mErr))
		}
		o.refundScript(ctx, script)
		return nil, fmt.Errorf("enqueue script: %w", err)
	}

	log.Info("Script requested", zap.Stringer("script_id", script.ID), zap.String("niche", script.Niche))
	return script, nil
}

// RequestVideo charges the video cost, creates the video and starts the audio and thumbnail stages.
func (o *Orchestrator) RequestVideo(ctx context.Context, userID uuid.UUID, req VideoRequest) (*models.Video, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	videoID := uuid.New()
	log := o.logger.With(zap.Stringer("user_id", userID), zap.Stringer("video_id", videoID))

	res, err := o.ledger.Deduct(ctx, userID, o.pricing.VideoCost, "video generation")
	if err != nil {
		return nil, fmt.Errorf("charge video: %w", err)
	}
	if !res.OK {
		return nil, models.ErrInsufficientCredits
	}

	refund := func(reason string) {
		o.refund(ctx, userID, o.pricing.VideoCost, "refund: "+reason, refundRef("refund:%s", videoID), "video_rejected")
	}

	script, err := o.scripts.Get(ctx, req.ScriptID)
	switch {
	case errors.Is(err, models.ErrNotFound) || (err == nil && script.UserID != userID):
		refund("script not found")
		return nil, fmt.Errorf("script %s: %w", req.ScriptID, models.ErrNotFound)
	case err != nil:
		refund("script lookup failed")
		return nil, fmt.Errorf("load script: %w", err)
	case script.Status != models.ScriptGenerated:
		refund("script not ready")
		return nil, fmt.Errorf("%w: script %s is %s", models.ErrInvalidInput, script.ID, script.Status)
	}

	now := o.now()
	video := &models.Video{
		ID:              videoID,
		UserID:          userID,
		ScriptID:        script.ID,
		Status:          models.VideoRequested,
		Voice:           req.Voice,
		VideoStyle:      req.VideoStyle,
		ThumbnailStyle:  req.ThumbnailStyle,
		ReservedCredits: o.pricing.VideoCost,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.videos.Create(ctx, video); err != nil {
		refund("video could not be stored")
		return nil, fmt.Errorf("create video: %w", err)
	}
	o.emit(ctx, video, "", nil, false)

	if err := o.startStages(ctx, video); err != nil {
		log.Error("Failed to start pipeline", zap.Error(err))
		if _, fErr := o.failVideo(ctx, video.ID, "", err); fErr != nil {
			log.Error("Failed to fail video after enqueue error", zap.Error(fErr))
		}
		return nil, fmt.Errorf("enqueue stages: %w", err)
	}

	updated, err := o.videos.Update(ctx, video.ID, func(v *models.Video) error {
		if v.Status != models.VideoRequested {
			return repository.ErrNoChange
		}
		v.Status = models.VideoProcessing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mark video processing: %w", err)
	}
	if updated.Status == models.VideoProcessing {
		o.emit(ctx, updated, "", nil, false)
	}

	log.Info("Video requested", zap.Stringer("script_id", script.ID), zap.Int64("cost", o.pricing.VideoCost))
	return updated, nil
}

func (o *Orchestrator) startStages(ctx context.Context, v *models.Video) error {
	if _, err := o.queue.Enqueue(ctx, models.TopicAudio, stage.AudioPayload{
		VideoID: v.ID,
		Voice:   v.Voice,
	}, queue.Policy{}); err != nil {
		return err
	}
	if _, err := o.queue.Enqueue(ctx, models.TopicThumbnail, stage.ThumbnailPayload{
		VideoID: v.ID,
		Style:   v.ThumbnailStyle,
	}, queue.Policy{}); err != nil {
		return err
	}
	return nil
}

// PublishVideo charges the publish cost and queues the upload of a completed video.
func (o *Orchestrator) PublishVideo(ctx context.Context, userID, videoID uuid.UUID, req PublishRequest) (uuid.UUID, error) {
	video, err := o.GetVideo(ctx, userID, videoID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := publishable(video); err != nil {
		return uuid.Nil, err
	}
	if req.ScheduledAt != nil && !req.ScheduledAt.After(o.now()) {
		return uuid.Nil, fmt.Errorf("%w: scheduledAt must be in the future", models.ErrInvalidInput)
	}
	if _, err := o.accounts.Get(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return uuid.Nil, models.ErrPlatformNotConnected
		}
		return uuid.Nil, fmt.Errorf("load platform account: %w", err)
	}

	if strings.TrimSpace(req.Title) == "" {
		script, err := o.scripts.Get(ctx, video.ScriptID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("load script: %w", err)
		}
		req.Title = script.Title
	}

	// The pending marker is taken under the row lock before charging, so concurrent or repeated
	// requests for one video cannot both pay.
	_, err = o.videos.Update(ctx, video.ID, func(v *models.Video) error {
		if err := publishable(v); err != nil {
			return err
		}
		requested := o.now()
		v.PublishRequestedAt = &requested
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	res, err := o.ledger.Deduct(ctx, userID, o.pricing.PublishCost, "video publish")
	if err != nil || !res.OK {
		o.releasePublishRequest(ctx, video.ID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("charge publish: %w", err)
		}
		return uuid.Nil, models.ErrInsufficientCredits
	}

	jobID, err := o.queue.Enqueue(ctx, models.TopicPublish, stage.PublishPayload{
		VideoID:     video.ID,
		UserID:      userID,
		Charged:     o.pricing.PublishCost,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		ScheduledAt: req.ScheduledAt,
	}, queue.Policy{})
	if err != nil {
		o.refund(ctx, userID, o.pricing.PublishCost, "refund: publish could not be queued", nil, "publish_rejected")
		o.releasePublishRequest(ctx, video.ID)
		return uuid.Nil, fmt.Errorf("enqueue publish: %w", err)
	}

	o.logger.Info("Publish requested",
		zap.Stringer("video_id", video.ID),
		zap.Stringer("job_id", jobID),
		zap.Bool("scheduled", req.ScheduledAt != nil),
	)
	return jobID, nil
}

func publishable(v *models.Video) error {
	switch {
	case v.Status != models.VideoCompleted:
		return fmt.Errorf("%w: video %s is %s", models.ErrInvalidState, v.ID, v.Status)
	case v.PublishedRef != nil:
		return fmt.Errorf("%w: video %s is already published", models.ErrInvalidState, v.ID)
	case v.PublishRequestedAt != nil:
		return fmt.Errorf("%w: video %s has a publish in progress", models.ErrInvalidState, v.ID)
	}
	return nil
}

// clearPublishRequest drops the pending marker of an upload that did not happen, so the owner
// can publish again.
func (o *Orchestrator) clearPublishRequest(ctx context.Context, videoID uuid.UUID) error {
	_, err := o.videos.Update(ctx, videoID, func(v *models.Video) error {
		if v.PublishedRef != nil || v.PublishRequestedAt == nil {
			return repository.ErrNoChange
		}
		v.PublishRequestedAt = nil
		return nil
	})
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	return err
}

func (o *Orchestrator) releasePublishRequest(ctx context.Context, videoID uuid.UUID) {
	if err := o.clearPublishRequest(ctx, videoID); err != nil {
		o.logger.Error("Failed to clear publish request", zap.Stringer("video_id", videoID), zap.Error(err))
	}
}

// GetVideo returns the caller's video. Videos of other users are reported as not found.
func (o *Orchestrator) GetVideo(ctx context.Context, userID, videoID uuid.UUID) (*models.Video, error) {
	v, err := o.videos.Get(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, models.ErrNotFound
	}
	return v, nil
}

func (o *Orchestrator) ListVideos(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Video, error) {
	return o.videos.ListByUser(ctx, userID, limit, offset)
}

func (o *Orchestrator) GetScript(ctx context.Context, userID, scriptID uuid.UUID) (*models.Script, error) {
	s, err := o.scripts.Get(ctx, scriptID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, models.ErrNotFound
	}
	return s, nil
}

func (o *Orchestrator) ListScripts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Script, error) {
	return o.scripts.ListByUser(ctx, userID, limit, offset)
}

// DeleteVideo removes the video. Jobs still in flight fail with a not found error and are dropped.
func (o *Orchestrator) DeleteVideo(ctx context.Context, userID, videoID uuid.UUID) error {
	if _, err := o.GetVideo(ctx, userID, videoID); err != nil {
		return err
	}
	if err := o.videos.Delete(ctx, videoID); err != nil {
		return err
	}
	o.logger.Info("Video deleted", zap.Stringer("video_id", videoID), zap.Stringer("user_id", userID))
	return nil
}

// DeleteScript removes the script together with every video made from it. Generation and stage
// jobs still in flight fail with a not found error and are dropped. Nothing is refunded.
func (o *Orchestrator) DeleteScript(ctx context.Context, userID, scriptID uuid.UUID) error {
	if _, err := o.GetScript(ctx, userID, scriptID); err != nil {
		return err
	}
	videos, err := o.videos.DeleteByScript(ctx, scriptID)
	if err != nil {
		return fmt.Errorf("delete videos of script: %w", err)
	}
	if err := o.scripts.Delete(ctx, scriptID); err != nil {
		return err
	}
	o.logger.Info("Script deleted",
		zap.Stringer("script_id", scriptID),
		zap.Stringer("user_id", userID),
		zap.Int64("videos", videos),
	)
	return nil
}

// ConnectPlatform stores the user's video platform credential.
func (o *Orchestrator) ConnectPlatform(ctx context.Context, account *models.PlatformAccount) error {
	if account.UserID == uuid.Nil || account.AccessToken == "" || account.RefreshToken == "" {
		return fmt.Errorf("%w: user, access token and refresh token are required", models.ErrInvalidInput)
	}
	if err := o.ledger.OpenAccount(ctx, account.UserID); err != nil {
		return fmt.Errorf("open account: %w", err)
	}
	account.UpdatedAt = o.now()
	return o.accounts.Upsert(ctx, account)
}

func (o *Orchestrator) refundScript(ctx context.Context, s *models.Script) {
	o.refund(ctx, s.UserID, o.pricing.ScriptCost, "refund: script generation failed", refundRef("refund:script:%s", s.ID), "script_failed")
}

// refund credits amount back and logs instead of failing; used on request paths where the caller
// already gets an error.
func (o *Orchestrator) refund(ctx context.Context, userID uuid.UUID, amount int64, description string, ref *string, reason string) {
	if _, err := o.addRefund(ctx, userID, amount, description, ref, reason); err != nil {
		o.logger.Error("Refund failed",
			zap.Stringer("user_id", userID),
			zap.Int64("amount", amount),
			zap.String("reason", reason),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) addRefund(ctx context.Context, userID uuid.UUID, amount int64, description string, ref *string, reason string) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	res, err := o.ledger.Add(ctx, userID, amount, models.TransactionRefund, description, ref)
	if err != nil {
		return false, err
	}
	if res.Applied {
		refundsIssued.WithLabelValues(reason).Inc()
	}
	return res.Applied, nil
}
