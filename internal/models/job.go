package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Topic names a queue lane. There is one topic per pipeline stage.
type Topic string

const (
	TopicScript    Topic = "script"
	TopicAudio     Topic = "audio"
	TopicVideo     Topic = "video"
	TopicThumbnail Topic = "thumbnail"
	TopicPublish   Topic = "publish"
)

// AllTopics lists every topic served by the worker process.
var AllTopics = []Topic{TopicScript, TopicAudio, TopicVideo, TopicThumbnail, TopicPublish}

type JobState string

const (
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

// Job is one durable, retryable unit of work.
type Job struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Topic       Topic           `json:"topic" db:"topic"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Attempts    int             `json:"attempts" db:"attempts"`
	MaxAttempts int             `json:"maxAttempts" db:"max_attempts"`
	BackoffBase time.Duration   `json:"backoffBase" db:"backoff_base"`
	State       JobState        `json:"state" db:"state"`
	NextRunAt   time.Time       `json:"nextRunAt" db:"next_run_at"`
	LastError   *string         `json:"lastError,omitempty" db:"last_error"`
	LockedAt    *time.Time      `json:"lockedAt,omitempty" db:"locked_at"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time       `json:"updatedAt" db:"updated_at"`
}
