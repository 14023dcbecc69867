package service

import (
	"context"

	"github.com/escrow-payments/internal/domain/shared"
)

// CompletionProcessor releases escrowed funds for a booking whose service was delivered
type CompletionProcessor interface {
	ProcessCompletion(ctx context.Context, event *shared.BookingCompletedEvent) error
}
