// Package apperr classifies the failures of the chat gateway so callers can
// decide between rejecting input, surfacing a retryable error, or silently
// carrying on with the next delivery attempt.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the classification of an error.
type Kind int

const (
	// KindValidation marks malformed input rejected before any network call.
	KindValidation Kind = iota
	// KindPersistence marks a store that is unreachable or rejected a read/write.
	KindPersistence
	// KindTransientDelivery marks a push drop or a failed poll tick.
	KindTransientDelivery
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindPersistence:
		return "persistence"
	case KindTransientDelivery:
		return "transient_delivery"
	default:
		return "unknown"
	}
}

// Standard errors for common conditions
var (
	ErrEmptyIdentifier   = errors.New("identifier is empty")
	ErrInvalidIdentifier = errors.New("identifier is malformed")
	ErrSameParticipant   = errors.New("both participants are the same")
	ErrEmptyBody         = errors.New("message body is empty")
	ErrBodyTooLong       = errors.New("message body is too long")
	ErrSendInProgress    = errors.New("a send is already in flight")
	ErrNotLoaded         = errors.New("conversation is not loaded")
	ErrClosed            = errors.New("conversation is closed")
	ErrNotFound          = errors.New("not found")
)

// Error wraps an error with its classification and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation wraps err as a ValidationError.
func Validation(op string, err error) error {
	return wrap(KindValidation, op, err)
}

// Persistence wraps err as a PersistenceError.
func Persistence(op string, err error) error {
	return wrap(KindPersistence, op, err)
}

// TransientDelivery wraps err as a TransientDeliveryError.
func TransientDelivery(op string, err error) error {
	return wrap(KindTransientDelivery, op, err)
}

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	// Keep the innermost classification, only enrich the operation.
	var ae *Error
	if errors.As(err, &ae) && ae.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the classification of err, if any.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindPersistence
}

// IsTransientDelivery reports whether err is a TransientDeliveryError.
func IsTransientDelivery(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindTransientDelivery
}
