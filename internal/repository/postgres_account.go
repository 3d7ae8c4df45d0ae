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

type pgAccountRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgPlatformAccountRepository returns a Postgres-backed PlatformAccountRepository.
func NewPgPlatformAccountRepository(db *pgxpool.Pool, logger *zap.Logger) PlatformAccountRepository {
	return &pgAccountRepository{db: db, logger: logger.Named("PgPlatformAccountRepo")}
}

func (r *pgAccountRepository) Upsert(ctx context.Context, a *models.PlatformAccount) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO platform_accounts (user_id, access_token, refresh_token, expiry, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry,
			updated_at = NOW()`,
		a.UserID, a.AccessToken, a.RefreshToken, a.Expiry)
	if err != nil {
		return fmt.Errorf("failed to upsert platform account for %s: %w", a.UserID, err)
	}
	return nil
}

func (r *pgAccountRepository) Get(ctx context.Context, userID uuid.UUID) (*models.PlatformAccount, error) {
	var a models.PlatformAccount
	err := pgxscan.Get(ctx, r.db, &a, `
		SELECT user_id, access_token, refresh_token, expiry, updated_at
		FROM platform_accounts WHERE user_id = $1`, userID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get platform account for %s: %w", userID, err)
	}
	return &a, nil
}

type pgSubscriptionRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPgSubscriptionRepository returns a Postgres-backed SubscriptionRepository.
func NewPgSubscriptionRepository(db *pgxpool.Pool, logger *zap.Logger) SubscriptionRepository {
	return &pgSubscriptionRepository{db: db, logger: logger.Named("PgSubscriptionRepo")}
}

func (r *pgSubscriptionRepository) Upsert(ctx context.Context, s *models.Subscription) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO subscriptions (user_id, external_ref, status, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			external_ref = EXCLUDED.external_ref,
			status = EXCLUDED.status,
			updated_at = NOW()`,
		s.UserID, s.ExternalRef, s.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription for %s: %w", s.UserID, err)
	}
	return nil
}

func (r *pgSubscriptionRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	var s models.Subscription
	err := pgxscan.Get(ctx, r.db, &s, `
		SELECT user_id, external_ref, status, updated_at FROM subscriptions WHERE user_id = $1`, userID)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get subscription for %s: %w", userID, err)
	}
	return &s, nil
}
