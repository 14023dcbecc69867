package shared

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// PaymentEventType classifies lifecycle events published from the outbox
type PaymentEventType string

const (
	PaymentEventAuthorizationCreated PaymentEventType = "PAYMENT_AUTHORIZATION_CREATED"
	PaymentEventAuthorized           PaymentEventType = "PAYMENT_AUTHORIZED"
	PaymentEventFailed               PaymentEventType = "PAYMENT_FAILED"
	PaymentEventCaptured             PaymentEventType = "PAYMENT_CAPTURED"
	PaymentEventCompleted            PaymentEventType = "PAYMENT_COMPLETED"
	PaymentEventTransferFailed       PaymentEventType = "PAYMENT_TRANSFER_FAILED"
	PaymentEventTransferRecorded     PaymentEventType = "PAYMENT_TRANSFER_RECORDED"
	PaymentEventCancelled            PaymentEventType = "PAYMENT_CANCELLED"
	PaymentEventRefunded             PaymentEventType = "PAYMENT_REFUNDED"
	PaymentEventPartiallyRefunded    PaymentEventType = "PAYMENT_PARTIALLY_REFUNDED"
	PaymentEventDisputeOpened        PaymentEventType = "PAYMENT_DISPUTE_OPENED"
	PaymentEventDisputeClosed        PaymentEventType = "PAYMENT_DISPUTE_CLOSED"
)

// UserRole is the caller role forwarded by the auth proxy
type UserRole string

const (
	UserRoleCustomer     UserRole = "customer"
	UserRoleProfessional UserRole = "professional"
	UserRoleAdmin        UserRole = "admin"
)
