package service

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

func TestVerifyStrictAmounts(t *testing.T) {
	tests := []struct {
		name    string
		claimed string
		want    models.VerificationOutcome
	}{
		{"exact", "1000", models.OutcomeVerified},
		{"exact with scale", "1000.00", models.OutcomeVerified},
		{"underpayment", "800", models.OutcomeAmountMismatch},
		{"overpayment", "1200", models.OutcomeAmountMismatch},
		{"paisa short", "999.99", models.OutcomeAmountMismatch},
		{"sub-paisa over", "1000.001", models.OutcomeAmountMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.issue(t, "1000", time.Minute)

			v, err := f.engine.Verify(context.Background(), f.strictClaim(req.CorrelationRef, tt.claimed))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Outcome)
			if tt.want == models.OutcomeVerified {
				assert.True(t, v.VerifiedAmount.Equal(decimal.NewFromInt(1000)))
			} else {
				assert.True(t, v.VerifiedAmount.IsZero())
			}

			stored, err := f.engine.Verification(context.Background(), req.CorrelationRef)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stored.Outcome)
		})
	}
}

func TestAmountMismatchSpendsReference(t *testing.T) {
	f := newFixture(t)
	req := f.issue(t, "1000", time.Minute)
	ctx := context.Background()

	v, err := f.engine.Verify(ctx, f.strictClaim(req.CorrelationRef, "800"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeAmountMismatch, v.Outcome)

	// Paying the right amount afterwards does not revive the reference.
	v, err = f.engine.Verify(ctx, f.strictClaim(req.CorrelationRef, "1000"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicateClaim, v.Outcome)

	status, err := f.registry.Status(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, status)
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture(t)
	req := f.issue(t, "1000", 0)
	ctx := context.Background()

	v, err := f.engine.Verify(ctx, f.strictClaim(req.CorrelationRef, "1000"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeExpired, v.Outcome)

	stored, err := f.registry.Lookup(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.False(t, stored.Consumed)

	status, err := f.registry.Status(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.RequestExpired, status)
}

func TestVerifyAfterTTLElapses(t *testing.T) {
	f := newFixture(t)
	req := f.issue(t, "1000", time.Minute)
	f.clock.Advance(time.Minute)

	v, err := f.engine.Verify(context.Background(), f.strictClaim(req.CorrelationRef, "1000"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeExpired, v.Outcome)
}

func TestVerifyUnknownReference(t *testing.T) {
	f := newFixture(t)

	v, err := f.engine.Verify(context.Background(), f.strictClaim("TXNDOESNOTEXIST", "1000"))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnknownReference, v.Outcome)
	assert.False(t, v.Verified())
}

func TestVerifyMalformedExternalID(t *testing.T) {
	f := newFixture(t)
	req := f.issue(t, "1000", time.Minute)
	ctx := context.Background()

	for _, bad := range []string{"", "12345", "ABCDEFGHIJKL", "1234567890123"} {
		claim := f.strictClaim(req.CorrelationRef, "1000")
		claim.ExternalTransactionID = bad
		v, err := f.engine.Verify(ctx, claim)
		require.NoError(t, err)
		assert.NotEqual(t, models.OutcomeVerified, v.Outcome, bad)
	}

	stored, err := f.engine.Verification(ctx, req.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnknownReference, stored.Outcome)
}

func TestVerifyLegacyIgnoresAmount(t *testing.T) {
	f := newFixture(t)
	req := f.issue(t, "1000", time.Minute)

	v, err := f.engine.Verify(context.Background(), models.VerificationClaim{
		CorrelationRef:        req.CorrelationRef,
		ExternalTransactionID: f.nextExternalID(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeVerified, v.Outcome)
	assert.False(t, v.Strict)
	assert.True(t, v.VerifiedAmount.Equal(decimal.NewFromInt(1000)))
}

func TestVerifyRejectsReusedExternalID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.issue(t, "1000", time.Minute)
	second := f.issue(t, "1000", time.Minute)

	claim := f.strictClaim(first.CorrelationRef, "1000")
	v, err := f.engine.Verify(ctx, claim)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeVerified, v.Outcome)

	claim.CorrelationRef = second.CorrelationRef
	v, err = f.engine.Verify(ctx, claim)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicateClaim, v.Outcome)

	stored, err := f.engine.Verification(ctx, second.CorrelationRef)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDuplicateClaim, stored.Outcome)
}

func TestConcurrentClaimsOnOneReference(t *testing.T) {
	for run := 0; run < 20; run++ {
		f := newFixture(t)
		req := f.issue(t, "1000", time.Minute)

		const workers = 8
		outcomes := make([]models.VerificationOutcome, workers)
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < workers; i++ {
			claim := f.strictClaim(req.CorrelationRef, "1000")
			wg.Add(1)
			go func(i int, claim models.VerificationClaim) {
				defer wg.Done()
				<-start
				v, err := f.engine.Verify(context.Background(), claim)
				require.NoError(t, err)
				outcomes[i] = v.Outcome
			}(i, claim)
		}
		close(start)
		wg.Wait()

		counts := map[models.VerificationOutcome]int{}
		for _, o := range outcomes {
			counts[o]++
		}
		assert.Equal(t, 1, counts[models.OutcomeVerified])
		assert.Equal(t, workers-1, counts[models.OutcomeDuplicateClaim])
	}
}

func TestStrictVerifiedIffAmountsEqual(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		expected := decimal.New(rng.Int63n(500000)+1, -2)
		claimed := expected
		if rng.Intn(2) == 0 {
			claimed = expected.Add(decimal.New(rng.Int63n(2000)-1000, -2))
		}
		req := f.issue(t, expected.String(), time.Minute)

		v, err := f.engine.Verify(ctx, models.VerificationClaim{
			CorrelationRef:        req.CorrelationRef,
			ExternalTransactionID: f.nextExternalID(),
			ClaimedAmount:         claimed,
			Strict:                true,
		})
		require.NoError(t, err)
		assert.Equal(t, claimed.Equal(expected), v.Verified(), "expected %s claimed %s", expected, claimed)
	}
}
