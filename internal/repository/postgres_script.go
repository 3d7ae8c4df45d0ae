package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reelforge/internal/models"
)

const scriptColumns = `id, user_id, title, content, niche, keywords, length, status, created_at`

type pgScriptRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgScriptRepository returns a Postgres-backed ScriptRepository.
func NewPgScriptRepository(db *pgxpool.Pool, logger *zap.Logger) ScriptRepository {
	return &pgScriptRepository{db: db, logger: logger.Named("PgScriptRepo")}
}

func (r *pgScriptRepository) Create(ctx context.Context, s *models.Script) error {
	query := `
		INSERT INTO scripts (` + scriptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		s.ID, s.UserID, s.Title, s.Content, s.Niche, s.Keywords, s.Length, s.Status, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert script %s: %w", s.ID, err)
	}
	return nil
}

func (r *pgScriptRepository) Get(ctx context.Context, id uuid.UUID) (*models.Script, error) {
	var s models.Script
	err := pgxscan.Get(ctx, r.db, &s, `SELECT `+scriptColumns+` FROM scripts WHERE id = $1`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get script %s: %w", id, err)
	}
	return &s, nil
}

func (r *pgScriptRepository) MarkGenerated(ctx context.Context, id uuid.UUID, title, content string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE scripts SET title = $2, content = $3, status = 'GENERATED'
		WHERE id = $1 AND status = 'PENDING'`, id, title, content)
	if err != nil {
		return false, fmt.Errorf("failed to mark script %s generated: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.exists(ctx, id)
	}
	return true, nil
}

func (r *pgScriptRepository) MarkFailed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE scripts SET status = 'FAILED' WHERE id = $1 AND status = 'PENDING'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark script %s failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return false, r.exists(ctx, id)
	}
	return true, nil
}

func (r *pgScriptRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Script, error) {
	scripts := []*models.Script{}
	err := pgxscan.Select(ctx, r.db, &scripts, `
		SELECT `+scriptColumns+` FROM scripts
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scripts for %s: %w", userID, err)
	}
	return scripts, nil
}

// Delete removes the script; its videos go with it through the foreign key cascade.
func (r *pgScriptRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM scripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete script %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// exists returns models.ErrNotFound when the script row is gone.
func (r *pgScriptRepository) exists(ctx context.Context, id uuid.UUID) error {
	var found bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scripts WHERE id = $1)`, id).Scan(&found); err != nil {
		return fmt.Errorf("failed to check script %s: %w", id, err)
	}
	if !found {
		return models.ErrNotFound
	}
	return nil
}
