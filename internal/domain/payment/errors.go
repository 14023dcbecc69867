package payment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error taxonomy surfaced by the coordinators
var (
	ErrUnauthorized       = errors.New("requester is not allowed to perform this operation")
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidStatus      = errors.New("operation not valid for current payment status")
	ErrInvalidAmount      = errors.New("invalid payment amount")
	ErrPayeeNotReady      = errors.New("payee payout account is not ready")
	ErrAlreadyProcessed   = errors.New("payment already processed")
	ErrProcessorError     = errors.New("payment processor error")
	ErrNoPayment          = errors.New("no payment exists for booking")
	ErrRefundExceedsTotal = errors.New("refund exceeds refundable total")
)

// ErrTransferFailed reports a payout failure after a successful capture.
// The record is already completed with a failure annotation when this is returned.
type ErrTransferFailed struct {
	BookingID uuid.UUID
	Currency  string
	Amount    int64
	Cause     error
}

func (e ErrTransferFailed) Error() string {
	return fmt.Sprintf("transfer of %d %s failed for booking %s: %v", e.Amount, e.Currency, e.BookingID, e.Cause)
}

func (e ErrTransferFailed) Unwrap() error {
	return e.Cause
}

// Is matches any ErrTransferFailed when the target carries no booking ID
func (e ErrTransferFailed) Is(target error) bool {
	t, ok := target.(ErrTransferFailed)
	if !ok {
		return false
	}
	if t.BookingID == uuid.Nil {
		return true
	}
	return e.BookingID == t.BookingID
}

// ErrRecordNotFound indicates no ledger record exists for the lookup key
type ErrRecordNotFound struct {
	Key string
}

func (e ErrRecordNotFound) Error() string {
	return "payment record not found: " + e.Key
}

// Is matches any ErrRecordNotFound when the target key is empty
func (e ErrRecordNotFound) Is(target error) bool {
	t, ok := target.(ErrRecordNotFound)
	if !ok {
		return false
	}
	return t.Key == "" || t.Key == e.Key
}

// ErrConcurrentModification indicates the stored record version moved underneath the writer
type ErrConcurrentModification struct {
	BookingID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for payment record: " + e.BookingID.String()
}

// Is matches any ErrConcurrentModification when the target carries no booking ID
func (e ErrConcurrentModification) Is(target error) bool {
	t, ok := target.(ErrConcurrentModification)
	if !ok {
		return false
	}
	return t.BookingID == uuid.Nil || t.BookingID == e.BookingID
}
