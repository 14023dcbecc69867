package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Idempotency keys sent with every mutating processor call.
// They are derived only from the booking and the operation kind so a retried
// request replays the original effect instead of creating a new one.

func IntentKey(bookingID uuid.UUID, attempt int) string {
	if attempt <= 1 {
		return bookingID.String() + ":payment-intent"
	}
	return fmt.Sprintf("%s:payment-intent:%d", bookingID, attempt)
}

func CaptureKey(bookingID uuid.UUID) string {
	return bookingID.String() + ":capture"
}

func TransferKey(bookingID uuid.UUID) string {
	return bookingID.String() + ":transfer"
}

func CancelKey(bookingID uuid.UUID, attempt int) string {
	if attempt <= 1 {
		return bookingID.String() + ":cancel"
	}
	return fmt.Sprintf("%s:cancel:%d", bookingID, attempt)
}

func RefundKey(bookingID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s:refund:%d", bookingID, at.UnixNano())
}

func ReversalKey(bookingID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("%s:transfer-reversal:%d", bookingID, at.UnixNano())
}
