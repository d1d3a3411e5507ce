package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingRejected  BookingStatus = "REJECTED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// bookingTransitions is the only place booking transitions are declared.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending:   {BookingConfirmed, BookingRejected, BookingCancelled},
	BookingConfirmed: {BookingCompleted, BookingCancelled},
}

func (s BookingStatus) CanTransitionTo(to BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingRejected, BookingCompleted, BookingCancelled:
		return true
	}
	return false
}

type RefundStatus string

const (
	RefundNotApplicable RefundStatus = "NOT_APPLICABLE"
	RefundPending       RefundStatus = "PENDING"
	RefundIssued        RefundStatus = "ISSUED"
	RefundDenied        RefundStatus = "DENIED"
)

type Booking struct {
	ID               string          `json:"id"`
	CustomerID       string          `json:"customer_id"`
	EstablishmentID  string          `json:"establishment_id"`
	Amount           decimal.Decimal `json:"amount"`
	PaymentAmount    decimal.Decimal `json:"payment_amount"`
	Status           BookingStatus   `json:"status"`
	TransactionRef   string          `json:"transaction_ref"`
	QRCredential     string          `json:"-"`
	RefundStatus     RefundStatus    `json:"refund_status"`
	RejectionReason  string          `json:"rejection_reason,omitempty"`
	ConfirmedAt      *time.Time      `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	VisitCompletedAt *time.Time      `json:"visit_completed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// RemainingBalance is what the operator collects at visit time.
func (b *Booking) RemainingBalance() decimal.Decimal {
	return b.Amount.Sub(b.PaymentAmount)
}

// BookingTransition is a conditional status change applied by a repository.
// The change only lands if the stored status still equals From.
type BookingTransition struct {
	From             BookingStatus
	To               BookingStatus
	At               time.Time
	RejectionReason  string
	RefundStatus     RefundStatus
	ConfirmedAt      *time.Time
	CancelledAt      *time.Time
	VisitCompletedAt *time.Time
}

// Apply copies the transition onto b.
func (t BookingTransition) Apply(b *Booking) {
	b.Status = t.To
	b.UpdatedAt = t.At
	if t.RejectionReason != "" {
		b.RejectionReason = t.RejectionReason
	}
	if t.RefundStatus != "" {
		b.RefundStatus = t.RefundStatus
	}
	if t.ConfirmedAt != nil {
		b.ConfirmedAt = t.ConfirmedAt
	}
	if t.CancelledAt != nil {
		b.CancelledAt = t.CancelledAt
	}
	if t.VisitCompletedAt != nil {
		b.VisitCompletedAt = t.VisitCompletedAt
	}
}
