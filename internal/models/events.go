package models

import "time"

const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingRejected  = "booking.rejected"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
)

// StateChangeEvent is emitted after a booking transition is persisted.
type StateChangeEvent struct {
	Event           string        `json:"event"`
	BookingID       string        `json:"booking_id"`
	CustomerID      string        `json:"customer_id"`
	EstablishmentID string        `json:"establishment_id"`
	State           BookingStatus `json:"state"`
	PreviousState   BookingStatus `json:"previous_state,omitempty"`
	RefundStatus    RefundStatus  `json:"refund_status"`
	TransactionRef  string        `json:"transaction_ref"`
	Timestamp       time.Time     `json:"timestamp"`
}

// CredentialNotification asks the mail collaborator to deliver a QR credential.
type CredentialNotification struct {
	BookingID       string    `json:"booking_id"`
	CustomerID      string    `json:"customer_id"`
	EstablishmentID string    `json:"establishment_id"`
	Credential      string    `json:"credential"`
	RemainingAmount string    `json:"remaining_amount"`
	IssuedAt        time.Time `json:"issued_at"`
}
