package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/escrow"
)

// CompletionService turns a booking completion into a capture-transfer
type CompletionService struct {
	captures escrow.CaptureService
	logger   *slog.Logger
}

func NewCompletionService(captures escrow.CaptureService, logger *slog.Logger) *CompletionService {
	return &CompletionService{captures: captures, logger: logger}
}

// ProcessCompletion returns nil for outcomes a redelivery cannot change.
// Processor and storage failures are returned; the consumer retries the same
// message with backoff and parks it on the DLQ once attempts run out. A capture
// recorded without its transfer is resumed by the retry.
func (s *CompletionService) ProcessCompletion(ctx context.Context, event *shared.BookingCompletedEvent) error {
	logger := s.logger.With("booking_id", event.BookingID.String())
	if event.CorrelationID != "" {
		logger = logger.With("correlation_id", event.CorrelationID)
	}

	result, err := s.captures.CaptureAndTransfer(ctx, escrow.CaptureRequest{
		BookingID:     event.BookingID,
		CorrelationID: event.CorrelationID,
	})
	switch {
	case err == nil:
		logger.Info("Escrow released", "charge_id", result.ChargeID, "transfer_id", result.TransferID,
			"transfer_amount", result.TransferAmount, "transfer_currency", result.TransferCurrency)
		return nil
	case errors.Is(err, payment.ErrTransferFailed{}):
		logger.Warn("Captured but payout transfer failed, left for manual follow-up", "error", err)
		return nil
	case errors.Is(err, payment.ErrInvalidStatus),
		errors.Is(err, payment.ErrAlreadyProcessed),
		errors.Is(err, payment.ErrNoPayment):
		logger.Info("Completion skipped", "reason", err.Error())
		return nil
	default:
		return fmt.Errorf("capture for booking %s failed: %w", event.BookingID, err)
	}
}
