package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/payment_worker/service"
	"github.com/escrow-payments/internal/platform/messaging/producers"
)

// CompletionEventHandler handles booking completion messages from Kafka
type CompletionEventHandler struct {
	processor service.CompletionProcessor
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

func NewCompletionEventHandler(
	logger *slog.Logger,
	processor service.CompletionProcessor,
	producer producers.DeadLetterPublisher,
) *CompletionEventHandler {
	return &CompletionEventHandler{
		processor: processor,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage processes one message. A nil return commits the offset.
func (h *CompletionEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.BookingCompletedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return h.deadLetter(ctx, key, value, "Failed to unmarshal booking completion", err)
	}
	if err := event.Validate(); err != nil {
		return h.deadLetter(ctx, key, value, "Invalid booking completion", err)
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}
	logger.Info("Received booking completion", "booking_id", event.BookingID.String(), "completed_at", event.CompletedAt)

	if err := h.processor.ProcessCompletion(ctx, &event); err != nil {
		logger.Error("Failed to process booking completion", "booking_id", event.BookingID.String(), "error", err)
		return fmt.Errorf("processing completion for booking %s failed: %w", event.BookingID, err)
	}
	return nil
}

// deadLetter parks a message that can never be processed. Without a DLQ the
// error is returned and the consumer keeps retrying.
func (h *CompletionEventHandler) deadLetter(ctx context.Context, key, value []byte, msg string, cause error) error {
	h.logger.Error(msg, "error", cause, "message_key", string(key))

	if h.producer != nil {
		reason := fmt.Sprintf("%s: %s", msg, cause.Error())
		if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
			h.logger.Error("Failed to publish message to DLQ",
				"dlq_error", err,
				"original_error", cause,
				"message_key", string(key),
			)
		} else {
			h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
			return nil
		}
	}
	return fmt.Errorf("%s: %w", msg, cause)
}
