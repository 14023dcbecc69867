package escrow

import (
	"context"
	"errors"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/payee"
)

// PayeeResolver finds the payee a booking pays out to
type PayeeResolver struct {
	payees payee.Repository
}

func NewPayeeResolver(payees payee.Repository) *PayeeResolver {
	return &PayeeResolver{payees: payees}
}

// Resolve prefers the payee assigned to the booking and falls back to the
// professional behind the accepted quote.
func (r *PayeeResolver) Resolve(ctx context.Context, b *booking.Booking) (payee.Resolution, error) {
	if b.PayeeID != nil {
		p, err := r.payees.GetByID(ctx, *b.PayeeID)
		switch {
		case err == nil:
			return payee.Found(p), nil
		case !errors.Is(err, payee.ErrPayeeNotFound{}):
			return payee.NotFound(), err
		}
	}

	quote, ok := b.AcceptedQuote()
	if !ok {
		return payee.NotFound(), nil
	}

	p, err := r.payees.GetByUserID(ctx, quote.ProfessionalID)
	if err != nil {
		if errors.Is(err, payee.ErrPayeeNotFound{}) {
			return payee.NotFound(), nil
		}
		return payee.NotFound(), err
	}
	return payee.Found(p), nil
}
