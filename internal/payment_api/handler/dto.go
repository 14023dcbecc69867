package handler

import (
	"time"

	"github.com/escrow-payments/internal/domain/payment"
)

// RefundRequest represents a refund request body. A missing amount refunds the remainder.
type RefundRequest struct {
	Reason string `json:"reason" binding:"max=500"`
	Amount int64  `json:"amount" binding:"min=0"`
}

// PaymentIntentResponse represents an opened authorization in API responses
type PaymentIntentResponse struct {
	BookingID       string          `json:"booking_id"`
	AuthorizationID string          `json:"authorization_id"`
	ClientSecret    string          `json:"client_secret"`
	Reused          bool            `json:"reused"`
	Payment         payment.Summary `json:"payment"`
}

// CaptureResponse represents a completed capture-transfer in API responses
type CaptureResponse struct {
	BookingID        string          `json:"booking_id"`
	ChargeID         string          `json:"charge_id"`
	TransferID       string          `json:"transfer_id"`
	TransferAmount   int64           `json:"transfer_amount"`
	TransferCurrency string          `json:"transfer_currency"`
	Payment          payment.Summary `json:"payment"`
}

// RefundResponse represents an issued refund in API responses
type RefundResponse struct {
	BookingID     string          `json:"booking_id"`
	RefundID      string          `json:"refund_id,omitempty"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	FundingSource string          `json:"funding_source"`
	Payment       payment.Summary `json:"payment"`
}

// WebhookResponse is the acknowledgement returned to the processor
type WebhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// HealthResponse represents the health endpoint body
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
