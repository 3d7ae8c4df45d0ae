package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reelforge/internal/database"
	"reelforge/internal/models"
)

const videoColumns = `id, user_id, script_id, status, voice, video_style, thumbnail_style,
	audio_ref, audio_duration, video_ref, duration, thumbnail_ref, published_ref, publish_status,
	reserved_credits, created_at, updated_at, render_job_id, publish_requested_at`

type pgVideoRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgVideoRepository returns a Postgres-backed VideoRepository.
func NewPgVideoRepository(db *pgxpool.Pool, logger *zap.Logger) VideoRepository {
	return &pgVideoRepository{db: db, logger: logger.Named("PgVideoRepo")}
}

func (r *pgVideoRepository) Create(ctx context.Context, v *models.Video) error {
	query := `
		INSERT INTO videos (` + videoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	_, err := r.db.Exec(ctx, query,
		v.ID, v.UserID, v.ScriptID, v.Status, v.Voice, v.VideoStyle, v.ThumbnailStyle,
		v.AudioRef, v.AudioDuration, v.VideoRef, v.Duration, v.ThumbnailRef, v.PublishedRef, v.PublishStatus,
		v.ReservedCredits, v.CreatedAt, v.UpdatedAt, v.RenderJobID, v.PublishRequestedAt)
	if err != nil {
		return fmt.Errorf("failed to insert video %s: %w", v.ID, err)
	}
	return nil
}

func (r *pgVideoRepository) Get(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	return r.get(ctx, r.db, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id)
}

func (r *pgVideoRepository) get(ctx context.Context, q pgxscan.Querier, query string, id uuid.UUID) (*models.Video, error) {
	var v models.Video
	if err := pgxscan.Get(ctx, q, &v, query, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get video %s: %w", id, err)
	}
	return &v, nil
}

func (r *pgVideoRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Video, error) {
	videos := []*models.Video{}
	err := pgxscan.Select(ctx, r.db, &videos, `
		SELECT `+videoColumns+` FROM videos
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos for %s: %w", userID, err)
	}
	return videos, nil
}

// Update locks the row with SELECT FOR UPDATE, applies fn and writes the mutable columns back.
func (r *pgVideoRepository) Update(ctx context.Context, id uuid.UUID, fn VideoMutator) (*models.Video, error) {
	var result *models.Video
	err := database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		current, err := r.get(ctx, tx, `SELECT `+videoColumns+` FROM videos WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return err
		}
		working := *current
		if err := fn(&working); err != nil {
			if errors.Is(err, ErrNoChange) {
				result = current
				return nil
			}
			return err
		}
		working.UpdatedAt = time.Now().UTC()
		_, err = tx.Exec(ctx, `
			UPDATE videos SET status = $2, audio_ref = $3, audio_duration = $4, video_ref = $5, duration = $6,
				thumbnail_ref = $7, published_ref = $8, publish_status = $9, reserved_credits = $10, updated_at = $11,
				render_job_id = $12, publish_requested_at = $13
			WHERE id = $1`,
			id, working.Status, working.AudioRef, working.AudioDuration, working.VideoRef, working.Duration,
			working.ThumbnailRef, working.PublishedRef, working.PublishStatus, working.ReservedCredits, working.UpdatedAt,
			working.RenderJobID, working.PublishRequestedAt)
		if err != nil {
			return fmt.Errorf("failed to update video %s: %w", id, err)
		}
		result = &working
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pgVideoRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM videos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete video %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *pgVideoRepository) DeleteByScript(ctx context.Context, scriptID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM videos WHERE script_id = $1`, scriptID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete videos of script %s: %w", scriptID, err)
	}
	return tag.RowsAffected(), nil
}
