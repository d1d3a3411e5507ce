package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-verification/internal/interfaces"
	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

// amountPlaces is the currency precision every amount is checked against.
const amountPlaces = 2

type IssueRequest struct {
	PayeeIdentifier   string
	ExpectedAmount    decimal.Decimal
	RequesterIdentity string
	// RelatedBookingID pre-binds the request to an existing booking (balance payments).
	RelatedBookingID string
	TTL              time.Duration
}

// TransactionRegistry stores outstanding payment requests and the verification
// recorded against each of them.
type TransactionRegistry struct {
	repo interfaces.PaymentRequestRepository
	now  func() time.Time
}

func NewTransactionRegistry(repo interfaces.PaymentRequestRepository, now func() time.Time) *TransactionRegistry {
	if now == nil {
		now = time.Now
	}
	return &TransactionRegistry{repo: repo, now: now}
}

func (r *TransactionRegistry) Issue(ctx context.Context, in IssueRequest) (*models.PaymentRequest, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "registry.issue")
	defer span.End()

	if err := validateAmount("amount", in.ExpectedAmount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.PayeeIdentifier) == "" {
		return nil, models.NewValidationError("payee_identifier", "is required")
	}
	if strings.TrimSpace(in.RequesterIdentity) == "" {
		return nil, models.NewValidationError("requester_identity", "is required")
	}
	if in.TTL < 0 {
		return nil, models.NewValidationError("ttl", "must not be negative")
	}

	ref, err := newCorrelationRef()
	if err != nil {
		return nil, err
	}
	issuedAt := r.now()
	req := &models.PaymentRequest{
		CorrelationRef:    ref,
		PayeeIdentifier:   in.PayeeIdentifier,
		ExpectedAmount:    in.ExpectedAmount,
		RequesterIdentity: in.RequesterIdentity,
		RelatedBookingID:  in.RelatedBookingID,
		IssuedAt:          issuedAt,
		ExpiresAt:         issuedAt.Add(in.TTL),
	}
	if err := r.repo.InsertRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("store payment request: %w", err)
	}

	span.SetAttributes(attribute.String("transaction_ref", ref))
	telemetry.PaymentRequestsIssued.Inc()
	telemetry.Logger.Info("Payment request issued",
		zap.String("transaction_ref", ref),
		zap.String("payee", in.PayeeIdentifier),
		zap.String("amount", in.ExpectedAmount.StringFixed(amountPlaces)),
		zap.Time("expires_at", req.ExpiresAt),
	)
	return req, nil
}

func (r *TransactionRegistry) Lookup(ctx context.Context, ref string) (*models.PaymentRequest, error) {
	return r.repo.GetRequest(ctx, ref)
}

// TryConsume is the single serialization point for verification claims.
func (r *TransactionRegistry) TryConsume(ctx context.Context, ref string) (*models.PaymentRequest, error) {
	return r.repo.TryConsume(ctx, ref, r.now())
}

func (r *TransactionRegistry) Record(ctx context.Context, v *models.PaymentVerification) error {
	return r.repo.SaveVerification(ctx, v)
}

func (r *TransactionRegistry) Verification(ctx context.Context, ref string) (*models.PaymentVerification, error) {
	return r.repo.GetVerification(ctx, ref)
}

func (r *TransactionRegistry) Status(ctx context.Context, ref string) (models.RequestStatus, error) {
	req, err := r.repo.GetRequest(ctx, ref)
	if err != nil {
		return "", err
	}
	if !req.Consumed {
		if req.ExpiredAt(r.now()) {
			return models.RequestExpired, nil
		}
		return models.RequestPending, nil
	}

	// Consumed but not yet recorded: the claim that won is still being decided.
	v, err := r.repo.GetVerification(ctx, ref)
	if errors.Is(err, models.ErrNotFound) {
		return models.RequestPending, nil
	}
	if err != nil {
		return "", err
	}
	if v.Verified() {
		return models.RequestVerified, nil
	}
	return models.RequestRejected, nil
}

func validateAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return models.NewValidationError(field, "must be greater than zero")
	}
	if !d.Equal(d.Round(amountPlaces)) {
		return models.NewValidationError(field, fmt.Sprintf("must have at most %d decimal places", amountPlaces))
	}
	return nil
}

// newCorrelationRef fits the 35 character alphanumeric limit of the UPI tr field.
func newCorrelationRef() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate correlation ref: %w", err)
	}
	return "TXN" + strings.ToUpper(hex.EncodeToString(b)), nil
}
