package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/escrow-payments/internal/domain/outbox"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/escrow-payments/internal/platform/messaging/producers"
)

// EventPublisher forwards one outbox message to the payment events topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
}

type EventPublisherImpl struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

func NewEventPublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &EventPublisherImpl{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishEvent writes the stored payload keyed by booking so every event of a
// booking lands on the same partition, then marks the message PROCESSED.
// A crash between the two steps republishes; consumers dedupe on event_id.
func (p *EventPublisherImpl) PublishEvent(ctx context.Context, message *outbox.Message) error {
	logger := p.logger.With("outbox_id", message.ID, "event_id", message.EventID.String())

	headers := map[string]string{
		"event_id":   message.EventID.String(),
		"event_type": string(message.EventType),
	}
	if err := p.producer.Publish(ctx, message.BookingID.String(), message.Payload, headers); err != nil {
		return fmt.Errorf("publish outbox %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED", "error", err)
		return fmt.Errorf("event %s published, but failed to mark outbox %d as PROCESSED: %w", message.EventID, message.ID, err)
	}

	logger.Info("Published payment event", "booking_id", message.BookingID.String(), "event_type", message.EventType)
	return nil
}
