package payment

// Status is the lifecycle state of one authorization instance
type Status string

const (
	StatusPending           Status = "pending"
	StatusAuthorized        Status = "authorized"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// transitions lists the forward moves allowed by the state machine.
// Dispute handling bypasses this table through Record.force.
var transitions = map[Status][]Status{
	StatusPending:           {StatusAuthorized, StatusFailed},
	StatusAuthorized:        {StatusCompleted, StatusFailed, StatusRefunded},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusPartiallyRefunded, StatusRefunded},
}

// CanTransitionTo reports whether next is a legal successor of s
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllowsNewAuthorization reports whether a fresh authorization may replace this one
func (s Status) AllowsNewAuthorization() bool {
	return s == StatusFailed || s == StatusRefunded
}

// IsCaptured reports whether funds have left the customer's card
func (s Status) IsCaptured() bool {
	return s == StatusCompleted || s == StatusPartiallyRefunded
}

// FundingSource identifies whose balance pays for a refund
type FundingSource string

const (
	FundingSourcePlatform FundingSource = "platform"
	FundingSourceProvider FundingSource = "provider"
)

// AnnotationKind classifies operator-facing notes on a record
type AnnotationKind string

const (
	AnnotationTransferFailed      AnnotationKind = "transfer_failed"
	AnnotationReversalFailed      AnnotationKind = "transfer_reversal_failed"
	AnnotationDisputeOpened       AnnotationKind = "dispute_opened"
	AnnotationDisputeWon          AnnotationKind = "dispute_won"
	AnnotationDisputeLost         AnnotationKind = "dispute_lost"
	AnnotationAuthorizationReset  AnnotationKind = "authorization_reset"
	AnnotationAuthorizationFailed AnnotationKind = "authorization_failed"
)
