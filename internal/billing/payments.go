package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelforge/internal/ledger"
	"reelforge/internal/models"
	"reelforge/internal/repository"
)

// CreditLedger is the part of the ledger that payment events touch.
type CreditLedger interface {
	OpenAccount(ctx context.Context, userID uuid.UUID) error
	Add(ctx context.Context, userID uuid.UUID, amount int64, kind models.TransactionKind, description string, externalRef *string) (ledger.AddResult, error)
}

// PaymentHandler applies verified payment events. Delivery is at-least-once from both the
// message bus and the webhook, so every credit carries the event's external reference.
type PaymentHandler struct {
	ledger        CreditLedger
	subscriptions repository.SubscriptionRepository
	logger        *zap.Logger
	now           func() time.Time
}

func NewPaymentHandler(l CreditLedger, subs repository.SubscriptionRepository, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		ledger:        l,
		subscriptions: subs,
		logger:        logger.Named("PaymentHandler"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Handle applies ev. Malformed events and unknown types return ErrInvalidInput.
func (h *PaymentHandler) Handle(ctx context.Context, ev models.PaymentEvent) error {
	ev.ExternalRef = strings.TrimSpace(ev.ExternalRef)
	if ev.UserID == uuid.Nil {
		return h.reject(ev, fmt.Errorf("%w: payment event without user", models.ErrInvalidInput))
	}
	if ev.ExternalRef == "" {
		return h.reject(ev, fmt.Errorf("%w: payment event without external reference", models.ErrInvalidInput))
	}

	log := h.logger.With(
		zap.String("event_type", string(ev.EventType)),
		zap.Stringer("user_id", ev.UserID),
		zap.String("external_ref", ev.ExternalRef),
	)

	switch ev.EventType {
	case models.PaymentCheckoutCompleted:
		return h.credit(ctx, log, ev, models.TransactionPurchase, "credit purchase")
	case models.PaymentInvoicePaid:
		if err := h.credit(ctx, log, ev, models.TransactionSubscription, "subscription renewal"); err != nil {
			return err
		}
		return h.setSubscription(ctx, log, ev, models.SubscriptionActive)
	case models.PaymentSubscriptionCanceled:
		return h.setSubscription(ctx, log, ev, models.SubscriptionCanceled)
	default:
		return h.reject(ev, fmt.Errorf("%w: unknown payment event type %q", models.ErrInvalidInput, ev.EventType))
	}
}

func (h *PaymentHandler) credit(ctx context.Context, log *zap.Logger, ev models.PaymentEvent, kind models.TransactionKind, description string) error {
	ref := ev.ExternalRef
	res, err := h.ledger.Add(ctx, ev.UserID, ev.Amount, kind, description, &ref)
	if err != nil {
		paymentEvents.WithLabelValues(string(ev.EventType), "error").Inc()
		return fmt.Errorf("credit %s: %w", ev.ExternalRef, err)
	}
	if !res.Applied {
		paymentEvents.WithLabelValues(string(ev.EventType), "duplicate").Inc()
		log.Info("Duplicate payment event ignored")
		return nil
	}
	paymentEvents.WithLabelValues(string(ev.EventType), "applied").Inc()
	log.Info("Payment credited", zap.Int64("amount", ev.Amount), zap.Int64("balance", res.Balance))
	return nil
}

func (h *PaymentHandler) setSubscription(ctx context.Context, log *zap.Logger, ev models.PaymentEvent, status models.SubscriptionStatus) error {
	// A cancel can arrive for a user the ledger has never seen.
	if err := h.ledger.OpenAccount(ctx, ev.UserID); err != nil {
		return fmt.Errorf("open account: %w", err)
	}
	err := h.subscriptions.Upsert(ctx, &models.Subscription{
		UserID:      ev.UserID,
		ExternalRef: ev.ExternalRef,
		Status:      status,
		UpdatedAt:   h.now(),
	})
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if ev.EventType == models.PaymentSubscriptionCanceled {
		paymentEvents.WithLabelValues(string(ev.EventType), "applied").Inc()
	}
	log.Info("Subscription updated", zap.String("status", string(status)))
	return nil
}

func (h *PaymentHandler) reject(ev models.PaymentEvent, err error) error {
	paymentEvents.WithLabelValues(string(ev.EventType), "rejected").Inc()
	h.logger.Warn("Payment event rejected", zap.Error(err))
	return err
}
