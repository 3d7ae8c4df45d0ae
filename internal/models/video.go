package models

import (
	"time"

	"github.com/google/uuid"
)

type VideoStatus string

const (
	VideoRequested  VideoStatus = "REQUESTED"
	VideoProcessing VideoStatus = "PROCESSING"
	VideoCompleted  VideoStatus = "COMPLETED"
	VideoFailed     VideoStatus = "FAILED"
)

// IsTerminal reports whether no further pipeline transitions are allowed.
func (s VideoStatus) IsTerminal() bool {
	return s == VideoCompleted || s == VideoFailed
}

type VideoStyle string

const (
	VideoStyleModern  VideoStyle = "modern"
	VideoStyleMinimal VideoStyle = "minimal"
	VideoStyleDynamic VideoStyle = "dynamic"
)

func (s VideoStyle) Valid() bool {
	switch s {
	case VideoStyleModern, VideoStyleMinimal, VideoStyleDynamic:
		return true
	}
	return false
}

type ThumbnailStyle string

const (
	ThumbnailClickbait    ThumbnailStyle = "clickbait"
	ThumbnailProfessional ThumbnailStyle = "professional"
	ThumbnailMinimal      ThumbnailStyle = "minimal"
)

func (s ThumbnailStyle) Valid() bool {
	switch s {
	case ThumbnailClickbait, ThumbnailProfessional, ThumbnailMinimal:
		return true
	}
	return false
}

// PublishStatus is what the video platform reports after upload.
type PublishStatus string

const (
	PublishUploaded  PublishStatus = "UPLOADED"
	PublishPublished PublishStatus = "PUBLISHED"
)

const DefaultVoice = "en-US-Neural2-F"

// Video is a requested artifact moving through the production pipeline.
type Video struct {
	ID                 uuid.UUID      `json:"id" db:"id"`
	UserID             uuid.UUID      `json:"userId" db:"user_id"`
	ScriptID           uuid.UUID      `json:"scriptId" db:"script_id"`
	Status             VideoStatus    `json:"status" db:"status"`
	Voice              string         `json:"voice" db:"voice"`
	VideoStyle         VideoStyle     `json:"videoStyle" db:"video_style"`
	ThumbnailStyle     ThumbnailStyle `json:"thumbnailStyle" db:"thumbnail_style"`
	AudioRef           *string        `json:"audioRef,omitempty" db:"audio_ref"`
	AudioDuration      *float64       `json:"audioDuration,omitempty" db:"audio_duration"`
	RenderJobID        *uuid.UUID     `json:"-" db:"render_job_id"`
	VideoRef           *string        `json:"videoRef,omitempty" db:"video_ref"`
	Duration           *float64       `json:"duration,omitempty" db:"duration"`
	ThumbnailRef       *string        `json:"thumbnailRef,omitempty" db:"thumbnail_ref"`
	PublishRequestedAt *time.Time     `json:"publishRequestedAt,omitempty" db:"publish_requested_at"`
	PublishedRef       *string        `json:"publishedRef,omitempty" db:"published_ref"`
	PublishStatus      *PublishStatus `json:"publishStatus,omitempty" db:"publish_status"`
	ReservedCredits    int64          `json:"reservedCredits" db:"reserved_credits"`
	CreatedAt          time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time      `json:"updatedAt" db:"updated_at"`
}

// HasAnyOutput reports whether at least one stage has delivered an asset.
func (v *Video) HasAnyOutput() bool {
	return v.AudioRef != nil || v.VideoRef != nil || v.ThumbnailRef != nil
}

// ReadyToComplete reports whether both branches of the pipeline have reported.
func (v *Video) ReadyToComplete() bool {
	return v.VideoRef != nil && v.ThumbnailRef != nil
}

// PlatformAccount is the OAuth credential used to upload to the video platform.
type PlatformAccount struct {
	UserID       uuid.UUID `json:"userId" db:"user_id"`
	AccessToken  string    `json:"-" db:"access_token"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	Expiry       time.Time `json:"expiry" db:"expiry"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
