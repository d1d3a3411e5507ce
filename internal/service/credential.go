package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-verification/internal/interfaces"
	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

// CredentialIssuer mints the single QR credential of a confirmed booking and
// checks credentials presented at the door.
type CredentialIssuer struct {
	bookings interfaces.BookingRepository
	cache    interfaces.CredentialCache
}

// NewCredentialIssuer accepts a nil cache.
func NewCredentialIssuer(bookings interfaces.BookingRepository, cache interfaces.CredentialCache) *CredentialIssuer {
	return &CredentialIssuer{bookings: bookings, cache: cache}
}

// Issue stores a fresh credential for a confirmed booking. A second call for
// the same booking fails with models.ErrCredentialAlreadyIssued.
func (i *CredentialIssuer) Issue(ctx context.Context, bookingID string) (string, error) {
	b, err := i.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if b.QRCredential != "" {
		return "", models.ErrCredentialAlreadyIssued
	}
	if b.Status != models.BookingConfirmed {
		return "", fmt.Errorf("%w: booking %s is %s", models.ErrNotConfirmed, bookingID, b.Status)
	}

	cred, err := newCredential()
	if err != nil {
		return "", err
	}
	rows, err := i.bookings.SetCredential(ctx, bookingID, cred)
	if err != nil {
		return "", fmt.Errorf("store credential: %w", err)
	}
	if rows == 0 {
		return "", models.ErrCredentialAlreadyIssued
	}

	i.remember(ctx, bookingID, cred)
	telemetry.Logger.Info("QR credential issued", zap.String("booking_id", bookingID))
	return cred, nil
}

// Credential returns the issued credential, or models.ErrNotFound if none was issued.
func (i *CredentialIssuer) Credential(ctx context.Context, bookingID string) (string, error) {
	if i.cache != nil {
		cred, ok, err := i.cache.Get(ctx, bookingID)
		if err != nil {
			telemetry.Logger.Warn("Credential cache read failed", zap.String("booking_id", bookingID), zap.Error(err))
		}
		if ok {
			return cred, nil
		}
	}

	b, err := i.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return "", err
	}
	if b.QRCredential == "" {
		return "", models.ErrNotFound
	}
	i.remember(ctx, bookingID, b.QRCredential)
	return b.QRCredential, nil
}

// Validate compares in constant time over fixed-size digests, so neither the
// mismatching position nor the stored length leaks.
func (i *CredentialIssuer) Validate(ctx context.Context, bookingID, presented string) (bool, error) {
	stored, err := i.Credential(ctx, bookingID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	want := sha256.Sum256([]byte(stored))
	got := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1, nil
}

func (i *CredentialIssuer) remember(ctx context.Context, bookingID, cred string) {
	if i.cache == nil {
		return
	}
	if err := i.cache.Set(ctx, bookingID, cred); err != nil {
		telemetry.Logger.Warn("Credential cache write failed", zap.String("booking_id", bookingID), zap.Error(err))
	}
}

func newCredential() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate credential: %w", err)
	}
	return "QR-" + base64.RawURLEncoding.EncodeToString(b), nil
}
