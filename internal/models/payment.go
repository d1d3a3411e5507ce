package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VerificationOutcome is the result of checking a payment claim against the registry.
type VerificationOutcome string

const (
	OutcomeVerified         VerificationOutcome = "VERIFIED"
	OutcomeAmountMismatch   VerificationOutcome = "AMOUNT_MISMATCH"
	OutcomeExpired          VerificationOutcome = "EXPIRED"
	OutcomeDuplicateClaim   VerificationOutcome = "DUPLICATE_CLAIM"
	OutcomeUnknownReference VerificationOutcome = "UNKNOWN_REFERENCE"
)

// RequestStatus is the externally reported state of a payment request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestExpired  RequestStatus = "EXPIRED"
	RequestVerified RequestStatus = "VERIFIED"
	RequestRejected RequestStatus = "REJECTED"
)

// PaymentRequest is an outstanding expectation of a payment to an establishment payee.
type PaymentRequest struct {
	CorrelationRef    string
	PayeeIdentifier   string
	ExpectedAmount    decimal.Decimal
	RequesterIdentity string
	RelatedBookingID  string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Consumed          bool
	ConsumedAt        *time.Time
}

// ExpiredAt reports whether the request can no longer be verified at t.
func (r *PaymentRequest) ExpiredAt(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// VerificationClaim is what a customer submits after paying externally.
type VerificationClaim struct {
	CorrelationRef        string
	ExternalTransactionID string
	ClaimedAmount         decimal.Decimal
	Strict                bool
}

// PaymentVerification records the outcome of one claim.
type PaymentVerification struct {
	CorrelationRef        string
	ExternalTransactionID string
	ClaimedAmount         decimal.Decimal
	VerifiedAmount        decimal.Decimal
	Outcome               VerificationOutcome
	Strict                bool
	VerifiedAt            time.Time
}

func (v *PaymentVerification) Verified() bool {
	return v != nil && v.Outcome == OutcomeVerified
}

// Message is a human readable explanation of the outcome.
func (v *PaymentVerification) Message() string {
	switch v.Outcome {
	case OutcomeVerified:
		return "payment verified"
	case OutcomeAmountMismatch:
		return "claimed amount does not match the requested amount; issue a new payment request"
	case OutcomeExpired:
		return "payment request has expired"
	case OutcomeDuplicateClaim:
		return "payment request or transaction id has already been claimed"
	default:
		return "unknown transaction reference or malformed transaction id"
	}
}
