package audithook

// Action constants for audit events.
const (
	// Card lifecycle actions
	ActionCardCreated     = "card.created"
	ActionCardActivated   = "card.activated"
	ActionCardRedeemed    = "card.redeemed"
	ActionCardAdjusted    = "card.adjusted"
	ActionCardCanceled    = "card.canceled"
	ActionCardReactivated = "card.reactivated"
	ActionCardExpired     = "card.expired"

	// Concurrency actions
	ActionWriteConflict = "card.write_conflict"
)

// Resource constants for audit events.
const (
	ResourceCard = "card"
)

// Category constants for audit events.
const (
	CategoryStoredValue = "stored_value"
	CategoryConcurrency = "concurrency"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
