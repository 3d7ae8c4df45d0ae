package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"reelforge/internal/database"
	"reelforge/internal/models"
)

const (
	openAccountQuery = `INSERT INTO users (id, credit_balance) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`

	balanceQuery = `SELECT credit_balance FROM users WHERE id = $1`

	lockBalanceQuery = `SELECT credit_balance FROM users WHERE id = $1 FOR UPDATE`

	insertEntryQuery = `
		INSERT INTO credit_transactions (id, user_id, amount, kind, description, external_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (external_ref) WHERE external_ref IS NOT NULL DO NOTHING`

	moveBalanceQuery = `UPDATE users SET credit_balance = credit_balance + $2 WHERE id = $1 RETURNING credit_balance`

	historyQuery = `
		SELECT id, user_id, amount, kind, description, external_ref, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
)

// PostgresStore serializes per-user mutations with a row lock on the users table.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger.Named("PgLedgerStore")}
}

func (s *PostgresStore) OpenAccount(ctx context.Context, userID uuid.UUID) error {
	if _, err := s.db.Exec(ctx, openAccountQuery, userID); err != nil {
		return fmt.Errorf("failed to open account %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var balance int64
	if err := s.db.QueryRow(ctx, balanceQuery, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, models.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to read balance for %s: %w", userID, err)
	}
	return balance, nil
}

func (s *PostgresStore) Apply(ctx context.Context, entry models.CreditTransaction) (Outcome, int64, error) {
	var (
		outcome Outcome
		balance int64
	)
	err := database.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if entry.Amount > 0 {
			if _, err := tx.Exec(ctx, openAccountQuery, entry.UserID); err != nil {
				return fmt.Errorf("failed to open account: %w", err)
			}
		}

		if err := tx.QueryRow(ctx, lockBalanceQuery, entry.UserID).Scan(&balance); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrUserNotFound
			}
			return fmt.Errorf("failed to lock balance: %w", err)
		}

		if balance+entry.Amount < 0 {
			outcome = OutcomeInsufficient
			return nil
		}

		tag, err := tx.Exec(ctx, insertEntryQuery,
			entry.ID, entry.UserID, entry.Amount, entry.Kind, entry.Description, entry.ExternalRef, entry.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert credit transaction: %w", err)
		}
		if tag.RowsAffected() == 0 {
			outcome = OutcomeDuplicate
			return nil
		}

		if err := tx.QueryRow(ctx, moveBalanceQuery, entry.UserID, entry.Amount).Scan(&balance); err != nil {
			return fmt.Errorf("failed to update balance: %w", err)
		}
		outcome = OutcomeApplied
		return nil
	})
	if err != nil {
		if database.IsConflict(err) {
			return 0, 0, fmt.Errorf("%w: %v", models.ErrLedgerConflict, err)
		}
		return 0, 0, err
	}
	return outcome, balance, nil
}

func (s *PostgresStore) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error) {
	entries := []models.CreditTransaction{}
	if err := pgxscan.Select(ctx, s.db, &entries, historyQuery, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to load credit history for %s: %w", userID, err)
	}
	return entries, nil
}
