package models

import (
	"time"

	"github.com/google/uuid"
)

// VideoStatusEvent is fanned out on every video transition.
type VideoStatusEvent struct {
	VideoID       uuid.UUID      `json:"videoId"`
	UserID        uuid.UUID      `json:"userId"`
	Status        VideoStatus    `json:"status"`
	Stage         Topic          `json:"stage,omitempty"`
	PublishStatus *PublishStatus `json:"publishStatus,omitempty"`
	Error         string         `json:"error,omitempty"`
	Refunded      bool           `json:"refunded,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

// PaymentEventType is the kind of notification received from the payment provider.
type PaymentEventType string

const (
	PaymentCheckoutCompleted    PaymentEventType = "checkout.completed"
	PaymentInvoicePaid          PaymentEventType = "invoice.paid"
	PaymentSubscriptionCanceled PaymentEventType = "subscription.canceled"
)

// PaymentEvent is the credit relevant part of a verified payment notification.
type PaymentEvent struct {
	EventType   PaymentEventType `json:"eventType"`
	UserID      uuid.UUID        `json:"userId"`
	Amount      int64            `json:"amount"`
	ExternalRef string           `json:"externalRef"`
}
