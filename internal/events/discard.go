package events

import (
	"context"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

// Discard drops events and notifications. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(context.Context, models.StateChangeEvent) error { return nil }

func (Discard) NotifyCredential(context.Context, models.CredentialNotification) error { return nil }
