package booking

import (
	"context"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository reads bookings and refreshes their payment projection
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// UpdatePaymentProjection overwrites the embedded payment summary.
	// An empty status leaves the booking status untouched.
	UpdatePaymentProjection(ctx context.Context, id uuid.UUID, summary payment.Summary, status Status) error
	WithTx(tx pgx.Tx) Repository
}

// ErrBookingNotFound indicates missing booking
type ErrBookingNotFound struct {
	BookingID uuid.UUID
}

func (e ErrBookingNotFound) Error() string {
	return "booking not found: " + e.BookingID.String()
}

// Is implements the errors.Is interface for ErrBookingNotFound
func (e ErrBookingNotFound) Is(target error) bool {
	t, ok := target.(ErrBookingNotFound)
	if !ok {
		return false
	}
	return t.BookingID == uuid.Nil || t.BookingID == e.BookingID
}
