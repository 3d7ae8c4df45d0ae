package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"reelforge/internal/models"
)

type memoryAccount struct {
	mu      sync.Mutex
	balance int64
	entries []models.CreditTransaction
}

// MemoryStore keeps the ledger in process memory. Mutations for one user are serialized by
// that user's mutex; external references are unique across all users.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*memoryAccount

	refMu sync.Mutex
	refs  map[string]struct{}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[uuid.UUID]*memoryAccount),
		refs:     make(map[string]struct{}),
	}
}

func (s *MemoryStore) account(userID uuid.UUID, create bool) *memoryAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[userID]
	if !ok && create {
		acc = &memoryAccount{}
		s.accounts[userID] = acc
	}
	return acc
}

func (s *MemoryStore) OpenAccount(_ context.Context, userID uuid.UUID) error {
	s.account(userID, true)
	return nil
}

func (s *MemoryStore) Balance(_ context.Context, userID uuid.UUID) (int64, error) {
	acc := s.account(userID, false)
	if acc == nil {
		return 0, models.ErrUserNotFound
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

func (s *MemoryStore) Apply(ctx context.Context, entry models.CreditTransaction) (Outcome, int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	acc := s.account(entry.UserID, entry.Amount > 0)
	if acc == nil {
		return 0, 0, models.ErrUserNotFound
	}

	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.balance+entry.Amount < 0 {
		return OutcomeInsufficient, acc.balance, nil
	}

	if entry.ExternalRef != nil {
		s.refMu.Lock()
		if _, seen := s.refs[*entry.ExternalRef]; seen {
			s.refMu.Unlock()
			return OutcomeDuplicate, acc.balance, nil
		}
		s.refs[*entry.ExternalRef] = struct{}{}
		s.refMu.Unlock()
	}

	acc.entries = append(acc.entries, entry)
	acc.balance += entry.Amount
	return OutcomeApplied, acc.balance, nil
}

func (s *MemoryStore) History(_ context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error) {
	acc := s.account(userID, false)
	if acc == nil {
		return []models.CreditTransaction{}, nil
	}
	acc.mu.Lock()
	entries := make([]models.CreditTransaction, len(acc.entries))
	copy(entries, acc.entries)
	acc.mu.Unlock()

	// Appended in order, so newest-first is the reverse; the stable sort keeps that for equal timestamps.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	if offset >= len(entries) {
		return []models.CreditTransaction{}, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return entries[offset:end], nil
}

// Sum returns the total of all entries for a user. It exists for invariant checks.
func (s *MemoryStore) Sum(userID uuid.UUID) int64 {
	acc := s.account(userID, false)
	if acc == nil {
		return 0
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	var total int64
	for _, e := range acc.entries {
		total += e.Amount
	}
	return total
}
