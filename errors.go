package giftcard

import (
	"errors"
	"fmt"

	"github.com/xraph/giftcard/card"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("giftcard: not found")
	ErrAlreadyExists = errors.New("giftcard: already exists")
	ErrInvalidInput  = errors.New("giftcard: invalid input")

	// Card errors
	ErrCardNotFound           = errors.New("giftcard: card not found")
	ErrCodeExists             = errors.New("giftcard: card code already exists")
	ErrCodeGeneration         = errors.New("giftcard: could not generate a unique code")
	ErrConcurrentModification = errors.New("giftcard: concurrent modification")

	// Domain errors (raised by card transitions, re-exported here so
	// callers can match everything against this package).
	ErrInvalidAmount          = card.ErrInvalidAmount
	ErrInvalidStateTransition = card.ErrInvalidStateTransition
	ErrCardExpired            = card.ErrExpired

	// Store errors
	ErrStoreNotReady     = errors.New("giftcard: store not ready")
	ErrStoreClosed       = errors.New("giftcard: store is closed")
	ErrTransactionFailed = errors.New("giftcard: transaction failed")
	ErrMigrationFailed   = errors.New("giftcard: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("giftcard: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrCardNotFound)
}

// IsConflict returns true if the error was caused by a racing write or a
// uniqueness violation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrCodeExists)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried by the caller. The engine never retries internally: a
// concurrent modification means the caller must reload before deciding.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
