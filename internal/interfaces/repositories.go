package interfaces

import (
	"context"
	"time"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

// PaymentRequestRepository defines the contract for the transaction registry store
type PaymentRequestRepository interface {
	InsertRequest(ctx context.Context, req *models.PaymentRequest) error
	GetRequest(ctx context.Context, ref string) (*models.PaymentRequest, error)
	// TryConsume atomically flips consumed from false to true. It returns
	// models.ErrNotFound, models.ErrAlreadyConsumed or models.ErrExpired otherwise.
	TryConsume(ctx context.Context, ref string, now time.Time) (*models.PaymentRequest, error)
	// SaveVerification returns models.ErrDuplicateExternalID when a VERIFIED record
	// already uses the same external transaction id.
	SaveVerification(ctx context.Context, v *models.PaymentVerification) error
	GetVerification(ctx context.Context, ref string) (*models.PaymentVerification, error)
}

// BookingRepository defines the contract for booking data access
type BookingRepository interface {
	// CreateBound binds the booking's transaction ref to the booking and inserts it
	// in one transaction. Returns models.ErrVerificationAlreadyBound if the ref is taken.
	CreateBound(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	// TransitionBooking applies t only if the stored status equals t.From.
	TransitionBooking(ctx context.Context, id string, t models.BookingTransition) (int64, error)
	// SetCredential stores cred only if no credential is set yet.
	SetCredential(ctx context.Context, id, cred string) (int64, error)
}

type EstablishmentRepository interface {
	GetEstablishment(ctx context.Context, id string) (*models.Establishment, error)
}
