package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

const uniqueViolation = "23505"

type PaymentRequestRepository struct {
	db *sql.DB
}

func NewPaymentRequestRepository(db *sql.DB) *PaymentRequestRepository {
	return &PaymentRequestRepository{db: db}
}

func (r *PaymentRequestRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS payment_requests (
			correlation_ref VARCHAR(64) PRIMARY KEY,
			payee_identifier VARCHAR(255) NOT NULL,
			expected_amount NUMERIC(12,2) NOT NULL CHECK (expected_amount > 0),
			requester_identity VARCHAR(255) NOT NULL,
			related_booking_id VARCHAR(64),
			issued_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			consumed BOOLEAN NOT NULL DEFAULT FALSE,
			consumed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payment_requests_requester ON payment_requests(requester_identity)`,
		`CREATE TABLE IF NOT EXISTS payment_verifications (
			correlation_ref VARCHAR(64) PRIMARY KEY REFERENCES payment_requests(correlation_ref),
			external_transaction_id VARCHAR(64) NOT NULL,
			claimed_amount NUMERIC(12,2),
			verified_amount NUMERIC(12,2),
			outcome VARCHAR(32) NOT NULL,
			strict BOOLEAN NOT NULL,
			verified_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_verified_external_id
			ON payment_verifications(external_transaction_id) WHERE outcome = 'VERIFIED'`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *PaymentRequestRepository) InsertRequest(ctx context.Context, req *models.PaymentRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_requests
			(correlation_ref, payee_identifier, expected_amount, requester_identity, related_booking_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
	`, req.CorrelationRef, req.PayeeIdentifier, req.ExpectedAmount, req.RequesterIdentity, req.RelatedBookingID, req.IssuedAt, req.ExpiresAt)
	return err
}

const selectRequest = `
	SELECT correlation_ref, payee_identifier, expected_amount, requester_identity,
		COALESCE(related_booking_id, ''), issued_at, expires_at, consumed, consumed_at
	FROM payment_requests`

func scanRequest(row *sql.Row) (*models.PaymentRequest, error) {
	var (
		req        models.PaymentRequest
		consumedAt sql.NullTime
	)
	err := row.Scan(&req.CorrelationRef, &req.PayeeIdentifier, &req.ExpectedAmount, &req.RequesterIdentity,
		&req.RelatedBookingID, &req.IssuedAt, &req.ExpiresAt, &req.Consumed, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if consumedAt.Valid {
		req.ConsumedAt = &consumedAt.Time
	}
	return &req, nil
}

func (r *PaymentRequestRepository) GetRequest(ctx context.Context, ref string) (*models.PaymentRequest, error) {
	return scanRequest(r.db.QueryRowContext(ctx, selectRequest+` WHERE correlation_ref = $1`, ref))
}

// TryConsume is a single conditional UPDATE, so two concurrent claims on the
// same reference cannot both see consumed = FALSE.
func (r *PaymentRequestRepository) TryConsume(ctx context.Context, ref string, now time.Time) (*models.PaymentRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `
		UPDATE payment_requests SET consumed = TRUE, consumed_at = $2
		WHERE correlation_ref = $1 AND consumed = FALSE AND expires_at > $2
		RETURNING correlation_ref, payee_identifier, expected_amount, requester_identity,
			COALESCE(related_booking_id, ''), issued_at, expires_at, consumed, consumed_at
	`, ref, now))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("consume payment request: %w", err)
	}

	current, err := r.GetRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	if current.Consumed {
		return nil, models.ErrAlreadyConsumed
	}
	return nil, models.ErrExpired
}

func (r *PaymentRequestRepository) SaveVerification(ctx context.Context, v *models.PaymentVerification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_verifications
			(correlation_ref, external_transaction_id, claimed_amount, verified_amount, outcome, strict, verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.CorrelationRef, v.ExternalTransactionID, nullDecimal(v.ClaimedAmount), nullDecimal(v.VerifiedAmount),
		string(v.Outcome), v.Strict, v.VerifiedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && pqErr.Constraint == "uq_verified_external_id" {
		return models.ErrDuplicateExternalID
	}
	return err
}

func (r *PaymentRequestRepository) GetVerification(ctx context.Context, ref string) (*models.PaymentVerification, error) {
	var (
		v                 models.PaymentVerification
		outcome           string
		claimed, verified decimal.NullDecimal
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT correlation_ref, external_transaction_id, claimed_amount, verified_amount, outcome, strict, verified_at
		FROM payment_verifications WHERE correlation_ref = $1
	`, ref).Scan(&v.CorrelationRef, &v.ExternalTransactionID, &claimed, &verified, &outcome, &v.Strict, &v.VerifiedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Outcome = models.VerificationOutcome(outcome)
	v.ClaimedAmount = claimed.Decimal
	v.VerifiedAmount = verified.Decimal
	return &v, nil
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: !d.IsZero()}
}
