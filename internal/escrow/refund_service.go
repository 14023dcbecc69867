package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
)

// RefundServiceImpl implements the RefundService interface
type RefundServiceImpl struct {
	bookings booking.Repository
	payments payment.Repository
	gateway  gateway.Gateway
	recorder *PaymentRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewRefundService(logger *slog.Logger, bookings booking.Repository, payments payment.Repository, gw gateway.Gateway, recorder *PaymentRecorder) RefundService {
	return &RefundServiceImpl{
		bookings: bookings,
		payments: payments,
		gateway:  gw,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *RefundServiceImpl) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	logger := s.logger.With("booking_id", req.BookingID, "correlation_id", req.CorrelationID)

	b, err := s.bookings.GetByID(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, booking.ErrBookingNotFound{}) {
			return nil, fmt.Errorf("%w: %w", payment.ErrNotFound, err)
		}
		return nil, err
	}
	if !req.Requester.IsAdmin() && !b.IsCustomer(req.Requester.UserID) {
		return nil, payment.ErrUnauthorized
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: refund amount must not be negative", payment.ErrInvalidAmount)
	}

	r, err := s.payments.GetByBookingID(ctx, b.ID)
	if err != nil {
		if errors.Is(err, payment.ErrRecordNotFound{}) {
			return nil, payment.ErrNoPayment
		}
		return nil, err
	}

	switch {
	case r.Status == payment.StatusAuthorized:
		return s.cancel(ctx, logger, r, req)
	case r.Status.IsCaptured():
		return s.refundCaptured(ctx, logger, r, req)
	default:
		return nil, fmt.Errorf("%w: cannot refund from %s", payment.ErrInvalidStatus, r.Status)
	}
}

// cancel releases an uncaptured hold for the full total
func (s *RefundServiceImpl) cancel(ctx context.Context, logger *slog.Logger, r *payment.Record, req RefundRequest) (*RefundResult, error) {
	if err := s.gateway.CancelAuthorization(ctx, r.AuthorizationID, payment.CancelKey(r.BookingID, r.Attempt)); err != nil {
		logger.Error("Failed to cancel authorization", "authorization_id", r.AuthorizationID, "error", err)
		return nil, fmt.Errorf("%w: %w", payment.ErrProcessorError, err)
	}

	r, err := s.recorder.Mutate(ctx, r.BookingID, func(r *payment.Record) (*Change, error) {
		if r.Status == payment.StatusRefunded {
			// authorization canceled webhook got there first
			return nil, nil
		}
		if err := r.CancelAuthorization(req.Reason, s.now()); err != nil {
			return nil, err
		}
		return &Change{
			Event:         shared.PaymentEventCancelled,
			BookingStatus: booking.StatusCancelled,
			CorrelationID: req.CorrelationID,
		}, nil
	})
	if err != nil {
		logger.Error("Authorization cancelled but could not be recorded", "error", err)
		return nil, err
	}

	logger.Info("Authorization cancelled before capture", "amount", r.TotalWithVAT, "currency", r.Currency)

	return &RefundResult{
		Amount:        r.TotalWithVAT,
		Currency:      r.Currency,
		FundingSource: payment.FundingSourcePlatform,
		Summary:       r.Summary(),
	}, nil
}

func (s *RefundServiceImpl) refundCaptured(ctx context.Context, logger *slog.Logger, r *payment.Record, req RefundRequest) (*RefundResult, error) {
	refundable := r.RefundableAmount()
	amount := req.Amount
	if amount == 0 {
		amount = refundable
	}
	if amount == 0 || amount > refundable {
		return nil, payment.ErrRefundExceedsTotal
	}

	at := s.now()
	metadata := map[string]string{"booking_id": r.BookingID.String()}

	refund, err := s.gateway.CreateRefund(ctx, gateway.RefundRequest{
		AuthorizationID: r.AuthorizationID,
		Amount:          amount,
		Reason:          req.Reason,
		Metadata:        metadata,
		IdempotencyKey:  payment.RefundKey(r.BookingID, at),
	})
	if err != nil {
		logger.Error("Failed to create refund", "amount", amount, "error", err)
		return nil, fmt.Errorf("%w: %w", payment.ErrProcessorError, err)
	}

	entry := payment.RefundEntry{
		Amount:            amount,
		Currency:          r.Currency,
		Reason:            req.Reason,
		ProcessorRefundID: refund.ID,
		FundingSource:     payment.FundingSourcePlatform,
		CreatedAt:         at,
	}

	var reversalFailure *payment.Annotation
	if r.HasTransfer() {
		reversalFailure = s.reverseTransfer(ctx, logger, r, &entry, metadata, at)
	}

	r, err = s.recorder.Mutate(ctx, r.BookingID, func(r *payment.Record) (*Change, error) {
		if err := r.ApplyRefund(entry, at); err != nil {
			return nil, err
		}
		if reversalFailure != nil {
			r.Annotate(*reversalFailure)
		}
		event := shared.PaymentEventPartiallyRefunded
		if r.Status == payment.StatusRefunded {
			event = shared.PaymentEventRefunded
		}
		return &Change{
			Event:         event,
			BookingStatus: booking.StatusRefunded,
			CorrelationID: req.CorrelationID,
		}, nil
	})
	if err != nil {
		logger.Error("Refund issued but could not be recorded", "refund_id", refund.ID, "amount", amount, "error", err)
		return nil, err
	}

	logger.Info("Refund issued",
		"refund_id", refund.ID,
		"amount", amount,
		"currency", r.Currency,
		"funding_source", string(entry.FundingSource),
		"status", string(r.Status),
	)

	return &RefundResult{
		RefundID:      refund.ID,
		Amount:        amount,
		Currency:      r.Currency,
		FundingSource: entry.FundingSource,
		Summary:       r.Summary(),
	}, nil
}

// reverseTransfer claws back the payee's share of the refund. On failure the
// platform funds the refund and the returned annotation flags it for an operator.
func (s *RefundServiceImpl) reverseTransfer(ctx context.Context, logger *slog.Logger, r *payment.Record, entry *payment.RefundEntry, metadata map[string]string, at time.Time) *payment.Annotation {
	base := r.TransferAmount
	if base <= 0 {
		base = r.PayoutAmount()
	}
	currency := r.TransferCurrency
	if currency == "" {
		currency = r.Currency
	}
	amount := payment.ProportionalAmount(base, entry.Amount, r.TotalWithVAT)

	reversal, err := s.gateway.CreateTransferReversal(ctx, gateway.TransferReversalRequest{
		TransferID:     r.TransferID,
		Amount:         amount,
		Metadata:       metadata,
		IdempotencyKey: payment.ReversalKey(r.BookingID, at),
	})
	if err != nil {
		logger.Warn("Transfer reversal failed, refund funded by platform",
			"transfer_id", r.TransferID,
			"amount", amount,
			"currency", currency,
			"error", err,
		)
		entry.Notes = fmt.Sprintf("transfer reversal of %d %s failed: %v", amount, currency, err)
		return &payment.Annotation{
			Kind:      payment.AnnotationReversalFailed,
			Message:   err.Error(),
			Reference: r.TransferID,
			Currency:  currency,
			Amount:    amount,
			CreatedAt: at,
		}
	}

	entry.FundingSource = payment.FundingSourceProvider
	entry.Notes = fmt.Sprintf("transfer reversal %s of %d %s", reversal.ID, reversal.Amount, currency)
	return nil
}
