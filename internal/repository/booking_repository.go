package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

type BookingRepository struct {
	db *sql.DB
}

func NewBookingRepository(db *sql.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
			id VARCHAR(64) PRIMARY KEY,
			customer_id VARCHAR(255) NOT NULL,
			establishment_id VARCHAR(255) NOT NULL,
			amount NUMERIC(12,2) NOT NULL,
			payment_amount NUMERIC(12,2) NOT NULL,
			status VARCHAR(32) NOT NULL,
			transaction_ref VARCHAR(64) NOT NULL UNIQUE REFERENCES payment_requests(correlation_ref),
			qr_credential VARCHAR(128),
			refund_status VARCHAR(32) NOT NULL,
			rejection_reason TEXT NOT NULL DEFAULT '',
			confirmed_at TIMESTAMPTZ,
			cancelled_at TIMESTAMPTZ,
			visit_completed_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_customer ON bookings(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_establishment_status ON bookings(establishment_id, status)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// CreateBound claims the payment request for the booking and inserts the booking
// in one transaction, so one verified payment can back at most one booking.
func (r *BookingRepository) CreateBound(ctx context.Context, b *models.Booking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE payment_requests SET related_booking_id = $1
		WHERE correlation_ref = $2 AND consumed = TRUE AND related_booking_id IS NULL
	`, b.ID, b.TransactionRef)
	if err != nil {
		return fmt.Errorf("bind payment request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrVerificationAlreadyBound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookings
			(id, customer_id, establishment_id, amount, payment_amount, status, transaction_ref, refund_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, b.CustomerID, b.EstablishmentID, b.Amount, b.PaymentAmount, string(b.Status), b.TransactionRef,
		string(b.RefundStatus), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}

	return tx.Commit()
}

func (r *BookingRepository) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var (
		b                                 models.Booking
		status, refund                    string
		credential                        sql.NullString
		confirmedAt, cancelledAt, visitAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, establishment_id, amount, payment_amount, status, transaction_ref,
			qr_credential, refund_status, rejection_reason, confirmed_at, cancelled_at, visit_completed_at,
			created_at, updated_at
		FROM bookings WHERE id = $1
	`, id).Scan(&b.ID, &b.CustomerID, &b.EstablishmentID, &b.Amount, &b.PaymentAmount, &status, &b.TransactionRef,
		&credential, &refund, &b.RejectionReason, &confirmedAt, &cancelledAt, &visitAt,
		&b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	b.Status = models.BookingStatus(status)
	b.RefundStatus = models.RefundStatus(refund)
	b.QRCredential = credential.String
	b.ConfirmedAt = timePtr(confirmedAt)
	b.CancelledAt = timePtr(cancelledAt)
	b.VisitCompletedAt = timePtr(visitAt)
	return &b, nil
}

func (r *BookingRepository) TransitionBooking(ctx context.Context, id string, t models.BookingTransition) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET
			status = $1,
			updated_at = $2,
			rejection_reason = COALESCE(NULLIF($3, ''), rejection_reason),
			refund_status = COALESCE(NULLIF($4, ''), refund_status),
			confirmed_at = COALESCE($5, confirmed_at),
			cancelled_at = COALESCE($6, cancelled_at),
			visit_completed_at = COALESCE($7, visit_completed_at)
		WHERE id = $8 AND status = $9
	`, string(t.To), t.At, t.RejectionReason, string(t.RefundStatus), t.ConfirmedAt, t.CancelledAt, t.VisitCompletedAt,
		id, string(t.From))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *BookingRepository) SetCredential(ctx context.Context, id, cred string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET qr_credential = $1, updated_at = NOW()
		WHERE id = $2 AND qr_credential IS NULL
	`, cred, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
