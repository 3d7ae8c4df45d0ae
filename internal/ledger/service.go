package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelforge/internal/database"
	"reelforge/internal/models"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200

	maxConflictAttempts = 5
	conflictRetryDelay  = 10 * time.Millisecond
)

// DeductResult reports whether a debit went through.
type DeductResult struct {
	OK            bool
	Balance       int64
	TransactionID uuid.UUID
}

// AddResult reports whether a credit was applied or absorbed as a duplicate.
type AddResult struct {
	Applied bool
	Balance int64
}

// Service is the only component allowed to change a user's balance.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.Named("Ledger"),
		now:    time.Now,
	}
}

// OpenAccount makes sure the user has a ledger row with a zero balance.
func (s *Service) OpenAccount(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: empty user id", models.ErrInvalidInput)
	}
	return s.store.OpenAccount(ctx, userID)
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.Balance(ctx, userID)
}

// HasSufficientCredits is a read-only hint. Deduct is the only real gate.
func (s *Service) HasSufficientCredits(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("%w: amount must be >= 0", models.ErrInvalidInput)
	}
	balance, err := s.store.Balance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Deduct atomically debits amount. Insufficient funds are reported through OK=false, not an error.
func (s *Service) Deduct(ctx context.Context, userID uuid.UUID, amount int64, description string) (DeductResult, error) {
	if amount <= 0 {
		return DeductResult{}, fmt.Errorf("%w: deduct amount must be positive", models.ErrInvalidInput)
	}
	entry := models.CreditTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      -amount,
		Kind:        models.TransactionUsage,
		Description: description,
		CreatedAt:   s.now().UTC(),
	}

	outcome, balance, err := s.apply(ctx, entry)
	if err != nil {
		ledgerOperations.WithLabelValues("deduct", "error").Inc()
		return DeductResult{}, err
	}

	log := s.logger.With(zap.Stringer("user_id", userID), zap.Int64("amount", amount))
	switch outcome {
	case OutcomeApplied:
		ledgerOperations.WithLabelValues("deduct", "applied").Inc()
		log.Info("Credits deducted", zap.Int64("balance", balance), zap.String("description", description))
		return DeductResult{OK: true, Balance: balance, TransactionID: entry.ID}, nil
	case OutcomeInsufficient:
		ledgerOperations.WithLabelValues("deduct", "insufficient").Inc()
		log.Info("Deduction rejected: insufficient credits", zap.Int64("balance", balance))
		return DeductResult{OK: false, Balance: balance}, nil
	default:
		return DeductResult{}, fmt.Errorf("unexpected ledger outcome %d for deduct", outcome)
	}
}

// Add credits amount. A repeated externalRef is absorbed with Applied=false.
func (s *Service) Add(ctx context.Context, userID uuid.UUID, amount int64, kind models.TransactionKind, description string, externalRef *string) (AddResult, error) {
	if amount <= 0 {
		return AddResult{}, fmt.Errorf("%w: add amount must be positive", models.ErrInvalidInput)
	}
	if !kind.IsCredit() {
		return AddResult{}, fmt.Errorf("%w: kind %q cannot credit a balance", models.ErrInvalidInput, kind)
	}
	if userID == uuid.Nil {
		return AddResult{}, fmt.Errorf("%w: empty user id", models.ErrInvalidInput)
	}
	if externalRef != nil {
		ref := strings.TrimSpace(*externalRef)
		if ref == "" {
			externalRef = nil
		} else {
			externalRef = &ref
		}
	}

	entry := models.CreditTransaction{
		ID:          uuid.New(),
		UserID:      userID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		ExternalRef: externalRef,
		CreatedAt:   s.now().UTC(),
	}

	outcome, balance, err := s.apply(ctx, entry)
	if err != nil {
		ledgerOperations.WithLabelValues("add", "error").Inc()
		return AddResult{}, err
	}

	log := s.logger.With(
		zap.Stringer("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("kind", string(kind)),
	)
	switch outcome {
	case OutcomeApplied:
		ledgerOperations.WithLabelValues("add", "applied").Inc()
		log.Info("Credits added", zap.Int64("balance", balance))
		return AddResult{Applied: true, Balance: balance}, nil
	case OutcomeDuplicate:
		ledgerOperations.WithLabelValues("add", "duplicate").Inc()
		log.Info("Duplicate credit absorbed", zap.String("external_ref", *externalRef))
		return AddResult{Applied: false, Balance: balance}, nil
	default:
		return AddResult{}, fmt.Errorf("unexpected ledger outcome %d for add", outcome)
	}
}

// History pages through a user's entries, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error) {
	database.SanitizeLimit(&limit, DefaultHistoryLimit, MaxHistoryLimit)
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0", models.ErrInvalidInput)
	}
	return s.store.History(ctx, userID, limit, offset)
}

// apply retries storage conflicts so callers never observe them.
func (s *Service) apply(ctx context.Context, entry models.CreditTransaction) (Outcome, int64, error) {
	var lastErr error
	for attempt := 1; attempt <= maxConflictAttempts; attempt++ {
		outcome, balance, err := s.store.Apply(ctx, entry)
		if err == nil {
			return outcome, balance, nil
		}
		if !errors.Is(err, models.ErrLedgerConflict) {
			return 0, 0, fmt.Errorf("ledger apply failed: %w", err)
		}
		lastErr = err
		ledgerConflictRetries.Inc()
		s.logger.Debug("Ledger conflict, retrying",
			zap.Stringer("user_id", entry.UserID),
			zap.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		case <-time.After(time.Duration(attempt) * conflictRetryDelay):
		}
	}
	return 0, 0, fmt.Errorf("ledger apply gave up after %d attempts: %w", maxConflictAttempts, lastErr)
}
