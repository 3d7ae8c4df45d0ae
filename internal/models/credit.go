package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind classifies a ledger entry.
type TransactionKind string

const (
	TransactionPurchase     TransactionKind = "PURCHASE"
	TransactionSubscription TransactionKind = "SUBSCRIPTION"
	TransactionUsage        TransactionKind = "USAGE"
	TransactionRefund       TransactionKind = "REFUND"
)

// IsCredit reports whether the kind increases a balance.
func (k TransactionKind) IsCredit() bool {
	switch k {
	case TransactionPurchase, TransactionSubscription, TransactionRefund:
		return true
	default:
		return false
	}
}

// User holds the spendable balance. The balance is only mutated through the ledger.
type User struct {
	ID            uuid.UUID `json:"id" db:"id"`
	CreditBalance int64     `json:"creditBalance" db:"credit_balance"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// CreditTransaction is an immutable ledger entry.
type CreditTransaction struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"userId" db:"user_id"`
	Amount      int64           `json:"amount" db:"amount"`
	Kind        TransactionKind `json:"kind" db:"kind"`
	Description string          `json:"description" db:"description"`
	ExternalRef *string         `json:"externalRef,omitempty" db:"external_ref"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

// SubscriptionStatus is the state of a recurring plan.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

// Subscription tracks a user's recurring plan as reported by the payment provider.
type Subscription struct {
	UserID      uuid.UUID          `json:"userId" db:"user_id"`
	ExternalRef string             `json:"externalRef" db:"external_ref"`
	Status      SubscriptionStatus `json:"status" db:"status"`
	UpdatedAt   time.Time          `json:"updatedAt" db:"updated_at"`
}
