package gateway

import (
	"context"
	"errors"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnsupportedEvent = errors.New("unsupported event payload")
)

// AuthorizationStatus is the processor-side state of a held payment
type AuthorizationStatus string

const (
	AuthorizationRequiresPaymentMethod AuthorizationStatus = "requires_payment_method"
	AuthorizationRequiresConfirmation  AuthorizationStatus = "requires_confirmation"
	AuthorizationRequiresAction        AuthorizationStatus = "requires_action"
	AuthorizationProcessing            AuthorizationStatus = "processing"
	AuthorizationRequiresCapture       AuthorizationStatus = "requires_capture"
	AuthorizationCanceled              AuthorizationStatus = "canceled"
	AuthorizationSucceeded             AuthorizationStatus = "succeeded"
)

// AuthorizationRequest describes a manual-capture hold
type AuthorizationRequest struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type Authorization struct {
	ID           string
	ClientSecret string
	Status       AuthorizationStatus
	Amount       int64
	Currency     string
	ChargeID     string
}

// Capture is the result of capturing a held authorization
type Capture struct {
	AuthorizationID string
	ChargeID        string
	AmountReceived  int64
	Currency        string
}

// ChargeSettlement is what the processor credited to the platform balance for a charge
type ChargeSettlement struct {
	ChargeID string
	Amount   int64
	Currency string
}

type TransferRequest struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	SourceChargeID     string
	TransferGroup      string
	Metadata           map[string]string
	IdempotencyKey     string
}

type Transfer struct {
	ID                   string
	DestinationPaymentID string
	Amount               int64
	Currency             string
}

type TransferReversalRequest struct {
	TransferID     string
	Amount         int64
	Metadata       map[string]string
	IdempotencyKey string
}

type TransferReversal struct {
	ID     string
	Amount int64
}

// RefundRequest refunds a captured charge. A zero amount refunds the remainder.
type RefundRequest struct {
	AuthorizationID string
	Amount          int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

type Refund struct {
	ID       string
	Amount   int64
	Currency string
	Status   string
}

// Gateway is the outbound payment processor API used by the coordinators
type Gateway interface {
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	GetAuthorization(ctx context.Context, authorizationID string) (*Authorization, error)
	CaptureAuthorization(ctx context.Context, authorizationID, idempotencyKey string) (*Capture, error)
	CancelAuthorization(ctx context.Context, authorizationID, idempotencyKey string) error
	GetChargeSettlement(ctx context.Context, chargeID string) (*ChargeSettlement, error)
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	CreateTransferReversal(ctx context.Context, req TransferReversalRequest) (*TransferReversal, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
}

// EventVerifier authenticates a raw webhook body and decodes it into an Event
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (*Event, error)
}
