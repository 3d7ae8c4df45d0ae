package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reelforge/internal/models"
)

// Store persists jobs. Transition methods take the claimed job and must only apply while the
// job is still RUNNING under the same lock timestamp; otherwise they return ErrLeaseLost.
type Store interface {
	Insert(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// Claim moves up to limit ready jobs of topic to RUNNING, increments their attempts and
	// stamps LockedAt with now. Jobs come back ordered by (NextRunAt, CreatedAt).
	Claim(ctx context.Context, topic models.Topic, now time.Time, limit int) ([]*models.Job, error)
	MarkSucceeded(ctx context.Context, job *models.Job, now time.Time) error
	Reschedule(ctx context.Context, job *models.Job, nextRunAt time.Time, lastErr string) error
	// Release returns an interrupted job to QUEUED, ready at now, and gives back the attempt
	// Claim consumed.
	Release(ctx context.Context, job *models.Job, now time.Time) error
	MarkFailed(ctx context.Context, job *models.Job, now time.Time, lastErr string) error
	// Stuck lists RUNNING jobs locked before olderThan.
	Stuck(ctx context.Context, olderThan time.Time) ([]*models.Job, error)
	// CountByState is used by tests and the admin surface.
	CountByState(ctx context.Context, topic models.Topic) (map[models.JobState]int, error)
}
