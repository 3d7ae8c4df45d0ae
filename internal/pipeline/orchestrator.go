// Package pipeline drives videos and scripts through the production stages. It is the only
// component that changes a video's status.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelforge/internal/config"
	"reelforge/internal/ledger"
	"reelforge/internal/models"
	"reelforge/internal/queue"
	"reelforge/internal/repository"
)

// CreditLedger is the part of the ledger the orchestrator charges and refunds through.
type CreditLedger interface {
	OpenAccount(ctx context.Context, userID uuid.UUID) error
	Deduct(ctx context.Context, userID uuid.UUID, amount int64, description string) (ledger.DeductResult, error)
	Add(ctx context.Context, userID uuid.UUID, amount int64, kind models.TransactionKind, description string, externalRef *string) (ledger.AddResult, error)
}

// Enqueuer submits stage jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, topic models.Topic, payload any, policy queue.Policy) (uuid.UUID, error)
}

// HandlerRegistry receives the stage outcome handlers.
type HandlerRegistry interface {
	OnSuccess(topic models.Topic, h queue.SuccessHandler)
	OnFailure(topic models.Topic, h queue.FailureHandler)
}

// StatusPublisher fans out video status changes.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.VideoStatusEvent) error
}

// Pricing is the credit cost of each billable request.
type Pricing struct {
	ScriptCost  int64
	VideoCost   int64
	PublishCost int64
}

var DefaultPricing = Pricing{ScriptCost: 1, VideoCost: 3, PublishCost: 1}

func PricingFrom(cfg config.PricingConfig) Pricing {
	return Pricing{
		ScriptCost:  cfg.ScriptCost,
		VideoCost:   cfg.VideoCost,
		PublishCost: cfg.PublishCost,
	}
}

type Deps struct {
	Ledger   CreditLedger
	Queue    Enqueuer
	Scripts  repository.ScriptRepository
	Videos   repository.VideoRepository
	Accounts repository.PlatformAccountRepository
	Events   StatusPublisher
	Pricing  Pricing
	Logger   *zap.Logger
}

type Orchestrator struct {
	ledger   CreditLedger
	queue    Enqueuer
	scripts  repository.ScriptRepository
	videos   repository.VideoRepository
	accounts repository.PlatformAccountRepository
	events   StatusPublisher
	pricing  Pricing
	logger   *zap.Logger
	now      func() time.Time
}

func New(d Deps) *Orchestrator {
	pricing := d.Pricing
	if pricing == (Pricing{}) {
		pricing = DefaultPricing
	}
	return &Orchestrator{
		ledger:   d.Ledger,
		queue:    d.Queue,
		scripts:  d.Scripts,
		videos:   d.Videos,
		accounts: d.Accounts,
		events:   d.Events,
		pricing:  pricing,
		logger:   d.Logger.Named("Orchestrator"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register installs the stage outcome handlers on q.
func (o *Orchestrator) Register(q HandlerRegistry) {
	q.OnSuccess(models.TopicScript, o.onScriptSucceeded)
	q.OnFailure(models.TopicScript, o.onScriptFailed)

	q.OnSuccess(models.TopicAudio, o.onAudioSucceeded)
	q.OnSuccess(models.TopicVideo, o.onRenderSucceeded)
	q.OnSuccess(models.TopicThumbnail, o.onThumbnailSucceeded)
	for _, topic := range []models.Topic{models.TopicAudio, models.TopicVideo, models.TopicThumbnail} {
		q.OnFailure(topic, o.onStageFailed)
	}

	q.OnSuccess(models.TopicPublish, o.onPublishSucceeded)
	q.OnFailure(models.TopicPublish, o.onPublishFailed)
}

// emit publishes a status event. Failures are logged and never block the pipeline.
func (o *Orchestrator) emit(ctx context.Context, v *models.Video, stage models.Topic, cause error, refunded bool) {
	videoEvents.WithLabelValues(string(v.Status)).Inc()
	if o.events == nil {
		return
	}
	ev := models.VideoStatusEvent{
		VideoID:       v.ID,
		UserID:        v.UserID,
		Status:        v.Status,
		Stage:         stage,
		PublishStatus: v.PublishStatus,
		Refunded:      refunded,
		OccurredAt:    o.now(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := o.events.PublishStatus(ctx, ev); err != nil {
		o.logger.Warn("Failed to publish video status event",
			zap.Stringer("video_id", v.ID),
			zap.String("status", string(v.Status)),
			zap.Error(err),
		)
	}
}

func refundRef(format string, args ...any) *string {
	s := fmt.Sprintf(format, args...)
	return &s
}
