package outbox

import (
	"encoding/json"
	"time"

	"github.com/escrow-payments/internal/domain/payment"
	"github.com/escrow-payments/internal/domain/shared"
	"github.com/google/uuid"
)

// Message stores a payment lifecycle event until it is published
type Message struct {
	ID            int64                   `json:"id"`
	EventID       uuid.UUID               `json:"event_id"`
	BookingID     uuid.UUID               `json:"booking_id"`
	EventType     shared.PaymentEventType `json:"event_type"`
	Payload       json.RawMessage         `json:"payload"`
	Status        shared.OutboxStatus     `json:"status"`
	Attempts      int                     `json:"attempts"`
	CreatedAt     time.Time               `json:"created_at"`
	LastAttemptAt *time.Time              `json:"last_attempt_at,omitempty"`
}

func NewMessage(event *payment.LifecycleEvent) (*Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:   event.EventID,
		BookingID: event.BookingID,
		EventType: event.Type,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		CreatedAt: time.Now(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// GetLifecycleEvent decodes the event stored in the payload
func (m *Message) GetLifecycleEvent() (*payment.LifecycleEvent, error) {
	var event payment.LifecycleEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
