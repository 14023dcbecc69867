package payment

import (
	"time"

	"github.com/escrow-payments/internal/domain/shared"
	"github.com/google/uuid"
)

// LifecycleEvent is published downstream after every committed ledger mutation
type LifecycleEvent struct {
	EventID          uuid.UUID               `json:"event_id"`
	Type             shared.PaymentEventType `json:"type"`
	BookingID        uuid.UUID               `json:"booking_id"`
	CustomerID       uuid.UUID               `json:"customer_id"`
	PayeeID          uuid.UUID               `json:"payee_id"`
	Status           Status                  `json:"status"`
	Attempt          int                     `json:"attempt"`
	Currency         string                  `json:"currency"`
	TotalWithVAT     int64                   `json:"total_with_vat"`
	RefundedAmount   int64                   `json:"refunded_amount"`
	TransferAmount   int64                   `json:"transfer_amount,omitempty"`
	TransferCurrency string                  `json:"transfer_currency,omitempty"`
	CorrelationID    string                  `json:"correlation_id,omitempty"`
	OccurredAt       time.Time               `json:"occurred_at"`
}

func NewLifecycleEvent(eventType shared.PaymentEventType, r *Record, correlationID string, now time.Time) *LifecycleEvent {
	return &LifecycleEvent{
		EventID:          uuid.New(),
		Type:             eventType,
		BookingID:        r.BookingID,
		CustomerID:       r.CustomerID,
		PayeeID:          r.PayeeID,
		Status:           r.Status,
		Attempt:          r.Attempt,
		Currency:         r.Currency,
		TotalWithVAT:     r.TotalWithVAT,
		RefundedAmount:   r.RefundedAmount(),
		TransferAmount:   r.TransferAmount,
		TransferCurrency: r.TransferCurrency,
		CorrelationID:    correlationID,
		OccurredAt:       now,
	}
}
