package booking

import (
	"time"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/google/uuid"
)

// Status is the marketplace-facing state of a booking
type Status string

const (
	StatusRequested      Status = "requested"
	StatusQuoted         Status = "quoted"
	StatusPaymentPending Status = "payment_pending"
	StatusBooked         Status = "booked"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// QuoteStatus tracks the professional's offer
type QuoteStatus string

const (
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusRejected QuoteStatus = "rejected"
)

// CustomerType distinguishes consumers from businesses for VAT purposes
type CustomerType string

const (
	CustomerTypeIndividual CustomerType = "individual"
	CustomerTypeBusiness   CustomerType = "business"
)

// Quote is the price offer a professional made for a booking
type Quote struct {
	ID             uuid.UUID   `json:"id"`
	ProfessionalID uuid.UUID   `json:"professional_id"` // User ID of the professional who quoted
	Amount         int64       `json:"amount"`          // Net amount in minor units
	Currency       string      `json:"currency"`
	Status         QuoteStatus `json:"status"`
}

// Booking holds the customer's request and the read-only payment projection
type Booking struct {
	ID                uuid.UUID        `json:"id"`
	CustomerID        uuid.UUID        `json:"customer_id"`
	PayeeID           *uuid.UUID       `json:"payee_id,omitempty"`
	Quote             *Quote           `json:"quote,omitempty"`
	CustomerCountry   string           `json:"customer_country"`
	CustomerVATNumber string           `json:"customer_vat_number,omitempty"`
	CustomerType      CustomerType     `json:"customer_type"`
	CustomerLocale    string           `json:"customer_locale,omitempty"`
	Status            Status           `json:"status"`
	PaymentSummary    *payment.Summary `json:"payment_summary,omitempty"`
	Version           int              `json:"version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// AcceptedQuote returns the quote only when the customer accepted it
func (b *Booking) AcceptedQuote() (*Quote, bool) {
	if b.Quote == nil || b.Quote.Status != QuoteStatusAccepted {
		return nil, false
	}
	return b.Quote, true
}

func (b *Booking) IsCustomer(userID uuid.UUID) bool {
	return userID != uuid.Nil && b.CustomerID == userID
}
