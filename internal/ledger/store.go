package ledger

import (
	"context"

	"github.com/google/uuid"

	"reelforge/internal/models"
)

// Outcome of a single ledger mutation attempt.
type Outcome int

const (
	OutcomeApplied Outcome = iota
	OutcomeInsufficient
	OutcomeDuplicate
)

// Store persists balances and transactions. Apply must check and mutate atomically,
// serialized per user.
type Store interface {
	// OpenAccount creates the user row if it does not exist.
	OpenAccount(ctx context.Context, userID uuid.UUID) error
	// Balance returns models.ErrUserNotFound for unknown users.
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	// Apply appends entry and moves the balance by entry.Amount. Debits that would overdraw
	// report OutcomeInsufficient and credits carrying a known ExternalRef report OutcomeDuplicate,
	// both without mutating anything. Credits open the account when it does not exist yet.
	Apply(ctx context.Context, entry models.CreditTransaction) (Outcome, int64, error)
	// History returns entries newest first.
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error)
}
