package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

// externalIDPattern is the shape of a UPI UTR / RRN.
var externalIDPattern = regexp.MustCompile(`^[0-9]{12}$`)

// VerificationEngine checks payment claims against the transaction registry.
// Every business outcome is returned as a PaymentVerification; the error return
// is reserved for infrastructure failures.
type VerificationEngine struct {
	registry *TransactionRegistry
	now      func() time.Time
}

func NewVerificationEngine(registry *TransactionRegistry, now func() time.Time) *VerificationEngine {
	if now == nil {
		now = time.Now
	}
	return &VerificationEngine{registry: registry, now: now}
}

func (e *VerificationEngine) Verify(ctx context.Context, claim models.VerificationClaim) (*models.PaymentVerification, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "payment.verify")
	defer span.End()
	span.SetAttributes(
		attribute.String("transaction_ref", claim.CorrelationRef),
		attribute.Bool("strict", claim.Strict),
	)

	result := &models.PaymentVerification{
		CorrelationRef:        claim.CorrelationRef,
		ExternalTransactionID: claim.ExternalTransactionID,
		ClaimedAmount:         claim.ClaimedAmount,
		Strict:                claim.Strict,
		VerifiedAt:            e.now(),
	}

	req, err := e.registry.TryConsume(ctx, claim.CorrelationRef)
	switch {
	case errors.Is(err, models.ErrNotFound):
		result.Outcome = models.OutcomeUnknownReference
		return e.finish(result), nil
	case errors.Is(err, models.ErrExpired):
		result.Outcome = models.OutcomeExpired
		return e.finish(result), nil
	case errors.Is(err, models.ErrAlreadyConsumed):
		result.Outcome = models.OutcomeDuplicateClaim
		return e.finish(result), nil
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("consume %s: %w", claim.CorrelationRef, err)
	}

	// From here on the reference is spent whatever the outcome.
	result.Outcome = classify(req, claim)
	if result.Outcome == models.OutcomeVerified {
		result.VerifiedAmount = req.ExpectedAmount
	}

	err = e.registry.Record(ctx, result)
	if errors.Is(err, models.ErrDuplicateExternalID) {
		result.Outcome = models.OutcomeDuplicateClaim
		result.VerifiedAmount = decimal.Zero
		err = e.registry.Record(ctx, result)
	}
	if err != nil {
		span.RecordError(err)
		telemetry.Logger.Error("Failed to record verification for consumed request",
			zap.String("transaction_ref", claim.CorrelationRef),
			zap.Error(err),
		)
		return nil, fmt.Errorf("record verification %s: %w", claim.CorrelationRef, err)
	}

	return e.finish(result), nil
}

// Verification returns the recorded outcome for a consumed reference.
func (e *VerificationEngine) Verification(ctx context.Context, ref string) (*models.PaymentVerification, error) {
	return e.registry.Verification(ctx, ref)
}

func classify(req *models.PaymentRequest, claim models.VerificationClaim) models.VerificationOutcome {
	if !externalIDPattern.MatchString(claim.ExternalTransactionID) {
		return models.OutcomeUnknownReference
	}
	if !claim.Strict {
		return models.OutcomeVerified
	}
	if !claim.ClaimedAmount.Equal(req.ExpectedAmount) {
		return models.OutcomeAmountMismatch
	}
	return models.OutcomeVerified
}

func (e *VerificationEngine) finish(v *models.PaymentVerification) *models.PaymentVerification {
	telemetry.PaymentVerifications.WithLabelValues(telemetry.VerificationMode(v.Strict), string(v.Outcome)).Inc()

	fields := []zap.Field{
		zap.String("transaction_ref", v.CorrelationRef),
		zap.String("outcome", string(v.Outcome)),
		zap.Bool("strict", v.Strict),
		zap.String("claimed_amount", v.ClaimedAmount.StringFixed(amountPlaces)),
	}
	if v.Verified() {
		telemetry.Logger.Info("Payment verified", fields...)
	} else {
		telemetry.Logger.Warn("Payment verification rejected", fields...)
	}
	return v
}
