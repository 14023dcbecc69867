// Package escrow coordinates the payment lifecycle of a booking: holding funds
// on an authorization, capturing and paying out to the payee, refunding, and
// applying processor notifications. Every mutation lands on the ledger record
// first and is then projected onto the booking.
package escrow

import (
	"context"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TxRunner runs fn inside a single Postgres transaction
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// Requester is the authenticated caller of an operation
type Requester struct {
	UserID uuid.UUID
	Role   shared.UserRole
}

func (r Requester) IsAdmin() bool {
	return r.Role == shared.UserRoleAdmin
}

// IntentService opens held authorizations for bookings
type IntentService interface {
	// CreatePaymentIntent returns a usable client secret for the booking's payment.
	// A pending authorization is reused instead of creating a new one.
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*IntentResult, error)
}

// CaptureService turns an authorization into a payout
type CaptureService interface {
	// CaptureAndTransfer captures the held funds and transfers the payee's share.
	// Returns payment.ErrTransferFailed when the capture succeeded but the payout did not.
	CaptureAndTransfer(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
}

// RefundService returns funds to the customer
type RefundService interface {
	// Refund cancels an uncaptured authorization or refunds a captured charge
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

// WebhookService applies authenticated processor notifications
type WebhookService interface {
	// Process verifies the raw payload and dispatches it by event kind.
	// Returns gateway.ErrInvalidSignature when the payload is not authentic.
	Process(ctx context.Context, payload []byte, signature string) (*WebhookResult, error)
}

// QueryService reads the ledger
type QueryService interface {
	// GetPayment returns the payment of a booking visible to the requester
	GetPayment(ctx context.Context, bookingID uuid.UUID, requester Requester) (*PaymentView, error)
}

type IntentRequest struct {
	BookingID     uuid.UUID
	Requester     Requester
	CorrelationID string
}

type IntentResult struct {
	AuthorizationID string
	ClientSecret    string
	Reused          bool // True when an existing pending authorization was returned
	Summary         payment.Summary
}

type CaptureRequest struct {
	BookingID     uuid.UUID
	CorrelationID string
}

type CaptureResult struct {
	ChargeID         string
	TransferID       string
	TransferAmount   int64
	TransferCurrency string
	Summary          payment.Summary
}

// RefundRequest asks for a refund. A zero Amount refunds everything still refundable.
type RefundRequest struct {
	BookingID     uuid.UUID
	Requester     Requester
	Reason        string
	Amount        int64
	CorrelationID string
}

type RefundResult struct {
	RefundID      string
	Amount        int64
	Currency      string
	FundingSource payment.FundingSource
	Summary       payment.Summary
}

type WebhookResult struct {
	EventID   string
	Duplicate bool
}

// PaymentView is the ledger record as exposed to API callers
type PaymentView struct {
	BookingID   uuid.UUID             `json:"booking_id"`
	Summary     payment.Summary       `json:"summary"`
	Refunds     []payment.RefundEntry `json:"refunds"`
	Annotations []payment.Annotation  `json:"annotations,omitempty"`
}
