package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

const CredentialSubject = "notify.booking.credential"

// NATSNotifier hands issued QR credentials to the mail service.
type NATSNotifier struct {
	nc      *nats.Conn
	subject string
	timeout time.Duration
}

func NewNATSNotifier(nc *nats.Conn) *NATSNotifier {
	return &NATSNotifier{nc: nc, subject: CredentialSubject, timeout: 5 * time.Second}
}

func (n *NATSNotifier) NotifyCredential(ctx context.Context, note models.CredentialNotification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.subject, data); err != nil {
		return err
	}

	return n.nc.FlushTimeout(flushTimeout(ctx, n.timeout))
}

// flushTimeout bounds the flush by the context deadline. FlushTimeout rejects
// non-positive values, so a spent deadline falls back to the default.
func flushTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	if remaining := time.Until(deadline); remaining > 0 && remaining < fallback {
		return remaining
	}
	return fallback
}
