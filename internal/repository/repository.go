package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"reelforge/internal/models"
)

// ErrNoChange can be returned from an update func to leave the row untouched.
var ErrNoChange = errors.New("no change")

// VideoMutator edits a locked video row. Returning ErrNoChange skips the write.
type VideoMutator func(v *models.Video) error

type ScriptRepository interface {
	Create(ctx context.Context, script *models.Script) error
	Get(ctx context.Context, id uuid.UUID) (*models.Script, error)
	// MarkGenerated stores the content of a PENDING script. It reports false when the script
	// was not PENDING.
	MarkGenerated(ctx context.Context, id uuid.UUID, title, content string) (bool, error)
	// MarkFailed moves a PENDING script to FAILED and reports whether it did.
	MarkFailed(ctx context.Context, id uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Script, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type VideoRepository interface {
	Create(ctx context.Context, video *models.Video) error
	Get(ctx context.Context, id uuid.UUID) (*models.Video, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Video, error)
	// Update applies fn to the row while holding its lock and returns the stored result.
	Update(ctx context.Context, id uuid.UUID, fn VideoMutator) (*models.Video, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteByScript removes every video made from the script and returns how many there were.
	DeleteByScript(ctx context.Context, scriptID uuid.UUID) (int64, error)
}

type PlatformAccountRepository interface {
	Upsert(ctx context.Context, account *models.PlatformAccount) error
	Get(ctx context.Context, userID uuid.UUID) (*models.PlatformAccount, error)
}

type SubscriptionRepository interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	Get(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}
