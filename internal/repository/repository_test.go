package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

var requestColumns = []string{
	"correlation_ref", "payee_identifier", "expected_amount", "requester_identity",
	"related_booking_id", "issued_at", "expires_at", "consumed", "consumed_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestTryConsume(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	consumeSQL := regexp.QuoteMeta("UPDATE payment_requests SET consumed = TRUE")
	selectSQL := regexp.QuoteMeta("FROM payment_requests WHERE correlation_ref = $1")

	t.Run("consumes fresh request", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewPaymentRequestRepository(db)

		mock.ExpectQuery(consumeSQL).WithArgs("TXN1", now).WillReturnRows(
			sqlmock.NewRows(requestColumns).AddRow("TXN1", "hotel@upi", "1000.00", "cust-1", "", now, now.Add(time.Minute), true, now))

		req, err := repo.TryConsume(context.Background(), "TXN1", now)
		require.NoError(t, err)
		assert.True(t, req.Consumed)
		assert.True(t, req.ExpectedAmount.Equal(decimal.NewFromInt(1000)))
		require.NotNil(t, req.ConsumedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	tests := []struct {
		name    string
		rows    *sqlmock.Rows
		wantErr error
	}{
		{
			name:    "already consumed",
			rows:    sqlmock.NewRows(requestColumns).AddRow("TXN1", "hotel@upi", "1000.00", "cust-1", "", now, now.Add(time.Minute), true, now),
			wantErr: models.ErrAlreadyConsumed,
		},
		{
			name:    "expired",
			rows:    sqlmock.NewRows(requestColumns).AddRow("TXN1", "hotel@upi", "1000.00", "cust-1", "", now.Add(-time.Hour), now, false, nil),
			wantErr: models.ErrExpired,
		},
		{
			name:    "unknown",
			rows:    sqlmock.NewRows(requestColumns),
			wantErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewPaymentRequestRepository(db)

			mock.ExpectQuery(consumeSQL).WithArgs("TXN1", now).WillReturnRows(sqlmock.NewRows(requestColumns))
			mock.ExpectQuery(selectSQL).WithArgs("TXN1").WillReturnRows(tt.rows)

			_, err := repo.TryConsume(context.Background(), "TXN1", now)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSaveVerificationDuplicateExternalID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payment_verifications")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "uq_verified_external_id"})

	err := repo.SaveVerification(context.Background(), &models.PaymentVerification{
		CorrelationRef:        "TXN1",
		ExternalTransactionID: "123456789012",
		ClaimedAmount:         decimal.NewFromInt(1000),
		VerifiedAmount:        decimal.NewFromInt(1000),
		Outcome:               models.OutcomeVerified,
		Strict:                true,
		VerifiedAt:            time.Now(),
	})
	assert.ErrorIs(t, err, models.ErrDuplicateExternalID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVerification(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPaymentRequestRepository(db)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payment_verifications WHERE correlation_ref = $1")).WithArgs("TXN1").
		WillReturnRows(sqlmock.NewRows([]string{"correlation_ref", "external_transaction_id", "claimed_amount", "verified_amount", "outcome", "strict", "verified_at"}).
			AddRow("TXN1", "123456789012", "800.00", nil, "AMOUNT_MISMATCH", true, at))

	v, err := repo.GetVerification(context.Background(), "TXN1")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAmountMismatch, v.Outcome)
	assert.True(t, v.ClaimedAmount.Equal(decimal.NewFromInt(800)))
	assert.True(t, v.VerifiedAmount.IsZero())
	assert.True(t, v.Strict)
}

func TestCreateBound(t *testing.T) {
	booking := &models.Booking{
		ID:              "b1",
		CustomerID:      "cust-1",
		EstablishmentID: "est-1",
		Amount:          decimal.RequireFromString("1428.57"),
		PaymentAmount:   decimal.NewFromInt(1000),
		Status:          models.BookingPending,
		TransactionRef:  "TXN1",
		RefundStatus:    models.RefundNotApplicable,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	bindSQL := regexp.QuoteMeta("UPDATE payment_requests SET related_booking_id = $1")

	t.Run("binds and inserts", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(bindSQL).WithArgs("b1", "TXN1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateBound(context.Background(), booking))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects already bound verification", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewBookingRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(bindSQL).WithArgs("b1", "TXN1").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.CreateBound(context.Background(), booking)
		assert.ErrorIs(t, err, models.ErrVerificationAlreadyBound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransitionBooking(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET")).
		WithArgs("CONFIRMED", at, "", "", &at, nil, nil, "b1", "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 0))

	rows, err := repo.TransitionBooking(context.Background(), "b1", models.BookingTransition{
		From:        models.BookingPending,
		To:          models.BookingConfirmed,
		At:          at,
		ConfirmedAt: &at,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookingNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = $1")).WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBooking(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetEstablishment(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEstablishmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM establishments WHERE id = $1")).WithArgs("est-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "payee_identifier", "deposit_percent"}).
			AddRow("est-1", "Lake View Hotel", "lakeview@upi", "70.00"))

	e, err := repo.GetEstablishment(context.Background(), "est-1")
	require.NoError(t, err)
	assert.Equal(t, "lakeview@upi", e.PayeeIdentifier)
	assert.True(t, e.DepositPercent.Equal(decimal.NewFromInt(70)))
}
