package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

// EventPublisher emits booking state changes for out-of-core collaborators.
type EventPublisher interface {
	Publish(ctx context.Context, event models.StateChangeEvent) error
}

// Notifier requests out-of-band delivery of an issued QR credential.
type Notifier interface {
	NotifyCredential(ctx context.Context, n models.CredentialNotification) error
}

// Locker serializes work on a single key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// CredentialCache holds issued credentials. Credentials never change once issued.
type CredentialCache interface {
	Get(ctx context.Context, bookingID string) (string, bool, error)
	Set(ctx context.Context, bookingID, cred string) error
}
