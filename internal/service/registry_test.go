package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

var correlationRefPattern = regexp.MustCompile(`^TXN[0-9A-F]{32}$`)

func TestIssueRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.registry.Issue(ctx, IssueRequest{
		PayeeIdentifier:   testPayee,
		ExpectedAmount:    decimal.RequireFromString("1000.50"),
		RequesterIdentity: testCustomer,
		TTL:               15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Regexp(t, correlationRefPattern, req.CorrelationRef)
	assert.Equal(t, f.clock.Now(), req.IssuedAt)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), req.ExpiresAt)
	assert.False(t, req.Consumed)

	stored, err := f.registry.Lookup(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.True(t, stored.ExpectedAmount.Equal(decimal.RequireFromString("1000.50")))

	status, err := f.registry.Status(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, status)
}

func TestIssueRequestValidation(t *testing.T) {
	valid := IssueRequest{
		PayeeIdentifier:   testPayee,
		ExpectedAmount:    decimal.NewFromInt(100),
		RequesterIdentity: testCustomer,
		TTL:               time.Minute,
	}

	tests := []struct {
		name  string
		mod   func(r *IssueRequest)
		field string
	}{
		{"zero amount", func(r *IssueRequest) { r.ExpectedAmount = decimal.Zero }, "amount"},
		{"negative amount", func(r *IssueRequest) { r.ExpectedAmount = decimal.NewFromInt(-5) }, "amount"},
		{"sub-paisa amount", func(r *IssueRequest) { r.ExpectedAmount = decimal.RequireFromString("10.005") }, "amount"},
		{"missing payee", func(r *IssueRequest) { r.PayeeIdentifier = " " }, "payee_identifier"},
		{"missing requester", func(r *IssueRequest) { r.RequesterIdentity = "" }, "requester_identity"},
		{"negative ttl", func(r *IssueRequest) { r.TTL = -time.Second }, "ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := valid
			tt.mod(&in)
			_, err := f.registry.Issue(context.Background(), in)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCorrelationRefsAreUnique(t *testing.T) {
	f := newFixture(t)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		req := f.issue(t, "10", time.Minute)
		require.False(t, seen[req.CorrelationRef])
		seen[req.CorrelationRef] = true
	}
}

func TestRequestStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	verified := f.verifiedPayment(t, "500")
	status, err := f.registry.Status(ctx, verified.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestVerified, status)

	expiring := f.issue(t, "500", time.Minute)
	f.clock.Advance(2 * time.Minute)
	status, err = f.registry.Status(ctx, expiring.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestExpired, status)

	_, err = f.registry.Status(ctx, "TXNMISSING")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRequestStatusWhileClaimInFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.issue(t, "500", time.Minute)

	_, err := f.registry.TryConsume(ctx, req.CorrelationRef)
	require.NoError(t, err)

	status, err := f.registry.Status(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, status)

	// Even past its expiry a consumed request waits for its recorded outcome.
	f.clock.Advance(2 * time.Minute)
	status, err = f.registry.Status(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, status)

	require.NoError(t, f.registry.Record(ctx, &models.PaymentVerification{
		CorrelationRef:        req.CorrelationRef,
		ExternalTransactionID: f.nextExternalID(),
		Outcome:               models.OutcomeAmountMismatch,
		Strict:                true,
		VerifiedAt:            f.clock.Now(),
	}))
	status, err = f.registry.Status(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, status)
}
