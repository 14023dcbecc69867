package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/escrow-payments/internal/domain/booking"
	"github.com/escrow-payments/internal/domain/gateway"
	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
)

var errNoPayoutAccount = errors.New("payee has no connected payout account")

// CaptureServiceImpl implements the CaptureService interface
type CaptureServiceImpl struct {
	payments payment.Repository
	gateway  gateway.Gateway
	recorder *PaymentRecorder
	logger   *slog.Logger
	now      func() time.Time
}

func NewCaptureService(logger *slog.Logger, payments payment.Repository, gw gateway.Gateway, recorder *PaymentRecorder) CaptureService {
	return &CaptureServiceImpl{
		payments: payments,
		gateway:  gw,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *CaptureServiceImpl) CaptureAndTransfer(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	logger := s.logger.With("booking_id", req.BookingID, "correlation_id", req.CorrelationID)

	r, err := s.payments.GetByBookingID(ctx, req.BookingID)
	if err != nil {
		if errors.Is(err, payment.ErrRecordNotFound{}) {
			return nil, payment.ErrNoPayment
		}
		return nil, err
	}
	if r.Status != payment.StatusAuthorized {
		return nil, fmt.Errorf("%w: cannot capture from %s", payment.ErrInvalidStatus, r.Status)
	}

	capture, err := s.gateway.CaptureAuthorization(ctx, r.AuthorizationID, payment.CaptureKey(r.BookingID))
	if err != nil {
		logger.Error("Failed to capture authorization", "authorization_id", r.AuthorizationID, "error", err)
		return nil, fmt.Errorf("%w: %w", payment.ErrProcessorError, err)
	}

	r, err = s.recorder.Mutate(ctx, req.BookingID, func(r *payment.Record) (*Change, error) {
		if r.Status == payment.StatusAuthorized && r.CapturedAt != nil {
			// charge.captured webhook got there first
			return nil, nil
		}
		if err := r.MarkCaptured(capture.ChargeID, s.now()); err != nil {
			return nil, err
		}
		return &Change{Event: shared.PaymentEventCaptured, CorrelationID: req.CorrelationID}, nil
	})
	if err != nil {
		logger.Error("Capture succeeded but could not be recorded", "charge_id", capture.ChargeID, "error", err)
		return nil, err
	}

	amount, currency := s.transferAmount(ctx, logger, r)

	var transfer *gateway.Transfer
	if r.PayeeAccountID == "" {
		err = errNoPayoutAccount
	} else {
		transfer, err = s.gateway.CreateTransfer(ctx, gateway.TransferRequest{
			Amount:             amount,
			Currency:           currency,
			DestinationAccount: r.PayeeAccountID,
			SourceChargeID:     r.ChargeID,
			TransferGroup:      r.BookingID.String(),
			Metadata: map[string]string{
				"booking_id": r.BookingID.String(),
				"payee_id":   r.PayeeID.String(),
			},
			IdempotencyKey: payment.TransferKey(r.BookingID),
		})
	}
	if err != nil {
		return nil, s.recordTransferFailure(ctx, logger, r, amount, currency, err, req.CorrelationID)
	}

	r, err = s.recorder.Mutate(ctx, req.BookingID, func(r *payment.Record) (*Change, error) {
		if r.Status == payment.StatusCompleted && r.TransferID == transfer.ID {
			return nil, nil
		}
		if err := r.CompleteTransfer(transfer.ID, transfer.DestinationPaymentID, amount, currency, s.now()); err != nil {
			return nil, err
		}
		return &Change{
			Event:         shared.PaymentEventCompleted,
			BookingStatus: booking.StatusCompleted,
			CorrelationID: req.CorrelationID,
		}, nil
	})
	if err != nil {
		logger.Error("Transfer succeeded but could not be recorded", "transfer_id", transfer.ID, "error", err)
		return nil, err
	}

	logger.Info("Payment captured and transferred",
		"charge_id", r.ChargeID,
		"transfer_id", transfer.ID,
		"transfer_amount", amount,
		"transfer_currency", currency,
	)

	return &CaptureResult{
		ChargeID:         r.ChargeID,
		TransferID:       transfer.ID,
		TransferAmount:   amount,
		TransferCurrency: currency,
		Summary:          r.Summary(),
	}, nil
}

// transferAmount returns the payout in the currency the charge settled in.
// A settlement lookup failure falls back to the booking currency.
func (s *CaptureServiceImpl) transferAmount(ctx context.Context, logger *slog.Logger, r *payment.Record) (int64, string) {
	payout := r.PayoutAmount()
	if r.ChargeID == "" {
		return payout, r.Currency
	}

	settlement, err := s.gateway.GetChargeSettlement(ctx, r.ChargeID)
	if err != nil {
		logger.Warn("Settlement lookup failed, transferring in booking currency", "charge_id", r.ChargeID, "error", err)
		return payout, r.Currency
	}
	if settlement.Currency == "" || strings.EqualFold(settlement.Currency, r.Currency) {
		return payout, r.Currency
	}

	amount := payment.ProportionalAmount(settlement.Amount, payout, r.TotalWithVAT)
	logger.Info("Charge settled in a different currency",
		"booking_currency", r.Currency,
		"settlement_currency", settlement.Currency,
		"settlement_amount", settlement.Amount,
		"transfer_amount", amount,
	)
	return amount, strings.ToUpper(settlement.Currency)
}

func (s *CaptureServiceImpl) recordTransferFailure(ctx context.Context, logger *slog.Logger, r *payment.Record, amount int64, currency string, cause error, correlationID string) error {
	logger.Error("Transfer failed after capture, manual recovery required",
		"payee_account_id", r.PayeeAccountID,
		"amount", amount,
		"currency", currency,
		"error", cause,
	)

	failure := payment.ErrTransferFailed{
		BookingID: r.BookingID,
		Currency:  currency,
		Amount:    amount,
		Cause:     cause,
	}

	_, err := s.recorder.Mutate(ctx, r.BookingID, func(r *payment.Record) (*Change, error) {
		if err := r.CompleteWithTransferFailure(amount, currency, cause, s.now()); err != nil {
			return nil, err
		}
		return &Change{
			Event:         shared.PaymentEventTransferFailed,
			BookingStatus: booking.StatusCompleted,
			CorrelationID: correlationID,
		}, nil
	})
	if err != nil {
		return errors.Join(failure, err)
	}
	return failure
}
