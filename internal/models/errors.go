package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                    = errors.New("not found")
	ErrAlreadyConsumed             = errors.New("payment request already consumed")
	ErrExpired                     = errors.New("payment request expired")
	ErrDuplicateExternalID         = errors.New("external transaction id already verified")
	ErrVerificationAlreadyBound    = errors.New("payment verification already bound to a booking")
	ErrPaymentVerificationRequired = errors.New("payment verification required")
	ErrCredentialAlreadyIssued     = errors.New("qr credential already issued")
	ErrInvalidCredential           = errors.New("invalid qr credential")
	ErrNotConfirmed                = errors.New("booking is not confirmed")
	ErrNotOwner                    = errors.New("actor does not own this booking")
	ErrPayeeNotConfigured          = errors.New("establishment has no payee identifier configured")
	ErrBookingLocked               = errors.New("booking is being modified by another request")
)

// ValidationError rejects malformed input before anything is applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError is returned when a booking is not in the source state
// of the attempted transition.
type InvalidTransitionError struct {
	BookingID string
	Current   BookingStatus
	Target    BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition from %s to %s for booking %s", e.Current, e.Target, e.BookingID)
}

// NoOp reports whether the booking already sits in the attempted target state,
// which is what a double-submitted request observes.
func (e *InvalidTransitionError) NoOp() bool {
	return e.Current == e.Target
}
