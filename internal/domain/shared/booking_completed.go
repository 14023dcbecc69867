package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrMissingBookingID = errors.New("booking_id is required")

// BookingCompletedEvent defines a Kafka message emitted when a service has been delivered
type BookingCompletedEvent struct {
	BookingID     uuid.UUID `json:"booking_id"`
	CompletedAt   time.Time `json:"completed_at"`
	CorrelationID string    `json:"correlation_id"`
}

func (e BookingCompletedEvent) Validate() error {
	if e.BookingID == uuid.Nil {
		return ErrMissingBookingID
	}
	return nil
}
