package service

import (
	"time"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

// RefundPolicyResolver classifies the refund owed on cancellation. It never
// moves money; a PENDING refund is picked up by the refund processor.
type RefundPolicyResolver struct {
	// Window after confirmation within which a cancellation is refundable.
	// Zero means no cutoff.
	Window time.Duration
}

func (r RefundPolicyResolver) Resolve(b *models.Booking, cancelledAt time.Time) models.RefundStatus {
	if b.Status != models.BookingConfirmed {
		return models.RefundNotApplicable
	}
	if r.Window > 0 && b.ConfirmedAt != nil && cancelledAt.Sub(*b.ConfirmedAt) > r.Window {
		return models.RefundDenied
	}
	return models.RefundPending
}
