package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/google/uuid"
)

// QueryServiceImpl implements the QueryService interface
type QueryServiceImpl struct {
	bookings booking.Repository
	payments payment.Repository
	payees   *PayeeResolver
	logger   *slog.Logger
}

func NewQueryService(logger *slog.Logger, bookings booking.Repository, payments payment.Repository, payees *PayeeResolver) QueryService {
	return &QueryServiceImpl{
		bookings: bookings,
		payments: payments,
		payees:   payees,
		logger:   logger,
	}
}

// GetPayment is open to admins, the booking's customer and the payee's owner.
// Only the customer sees the client secret; annotations are for admins.
func (s *QueryServiceImpl) GetPayment(ctx context.Context, bookingID uuid.UUID, requester Requester) (*PaymentView, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound{}) {
			return nil, fmt.Errorf("%w: %w", payment.ErrNotFound, err)
		}
		return nil, err
	}

	customer := b.IsCustomer(requester.UserID)
	if !requester.IsAdmin() && !customer {
		owner, err := s.isPayeeOwner(ctx, b, requester.UserID)
		if err != nil {
			return nil, err
		}
		if !owner {
			return nil, payment.ErrUnauthorized
		}
	}

	r, err := s.payments.GetByBookingID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, payment.ErrRecordNotFound{}) {
			return nil, payment.ErrNoPayment
		}
		s.logger.Error("Failed to load payment record", "booking_id", bookingID, "error", err)
		return nil, err
	}

	view := &PaymentView{
		BookingID: r.BookingID,
		Summary:   r.Summary(),
		Refunds:   r.RefundEntries,
	}
	if !customer {
		view.Summary.ClientSecret = ""
	}
	if requester.IsAdmin() {
		view.Annotations = r.Annotations
	}
	if view.Refunds == nil {
		view.Refunds = []payment.RefundEntry{}
	}
	return view, nil
}

func (s *QueryServiceImpl) isPayeeOwner(ctx context.Context, b *booking.Booking, userID uuid.UUID) (bool, error) {
	if userID == uuid.Nil {
		return false, nil
	}
	resolution, err := s.payees.Resolve(ctx, b)
	if err != nil {
		return false, err
	}
	p, ok := resolution.Payee()
	return ok && p.UserID == userID, nil
}
