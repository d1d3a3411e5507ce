package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/booking-verification/internal/lock"
	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/repository/memory"
)

const (
	testCustomer      = "cust-1"
	testEstablishment = "est-1"
	testPayee         = "lakeview@upi"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.StateChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e models.StateChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []models.CredentialNotification
	err   error
}

func (n *recordingNotifier) NotifyCredential(_ context.Context, note models.CredentialNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.notes = append(n.notes, note)
	return nil
}

type fixture struct {
	store       *memory.Store
	clock       *testClock
	registry    *TransactionRegistry
	engine      *VerificationEngine
	credentials *CredentialIssuer
	machine     *BookingStateMachine
	payments    *PaymentService
	publisher   *recordingPublisher
	notifier    *recordingNotifier
	extIDs      int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     memory.NewStore(),
		clock:     &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	f.store.PutEstablishment(models.Establishment{
		ID:              testEstablishment,
		Name:            "Lake View Hotel",
		PayeeIdentifier: testPayee,
		DepositPercent:  decimal.NewFromInt(50),
	})
	f.store.PutEstablishment(models.Establishment{ID: "est-2", Name: "Hill Clinic", PayeeIdentifier: "hill@upi"})
	f.store.PutEstablishment(models.Establishment{ID: "est-unpaid", Name: "Corner Shop"})

	f.registry = NewTransactionRegistry(f.store, f.clock.Now)
	f.engine = NewVerificationEngine(f.registry, f.clock.Now)
	f.credentials = NewCredentialIssuer(f.store, nil)
	f.payments = NewPaymentService(f.registry, f.store, f.store, PaymentServiceConfig{TTL: 15 * time.Minute})
	f.machine = NewBookingStateMachine(BookingDeps{
		Bookings:       f.store,
		Establishments: f.store,
		Registry:       f.registry,
		Credentials:    f.credentials,
		Deposits:       DepositPolicy{DefaultPercent: decimal.NewFromInt(70)},
		Locker:         lock.NewLocalLocker(),
		Publisher:      f.publisher,
		Notifier:       f.notifier,
		Now:            f.clock.Now,
	})
	return f
}

func (f *fixture) nextExternalID() string {
	return fmt.Sprintf("%012d", atomic.AddInt64(&f.extIDs, 1))
}

func (f *fixture) issue(t *testing.T, amount string, ttl time.Duration) *models.PaymentRequest {
	t.Helper()
	req, err := f.registry.Issue(context.Background(), IssueRequest{
		PayeeIdentifier:   testPayee,
		ExpectedAmount:    decimal.RequireFromString(amount),
		RequesterIdentity: testCustomer,
		TTL:               ttl,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) strictClaim(ref, amount string) models.VerificationClaim {
	return models.VerificationClaim{
		CorrelationRef:        ref,
		ExternalTransactionID: f.nextExternalID(),
		ClaimedAmount:         decimal.RequireFromString(amount),
		Strict:                true,
	}
}

// verifiedPayment issues and strictly verifies a payment of amount.
func (f *fixture) verifiedPayment(t *testing.T, amount string) *models.PaymentVerification {
	t.Helper()
	req := f.issue(t, amount, 15*time.Minute)
	v, err := f.engine.Verify(context.Background(), f.strictClaim(req.CorrelationRef, amount))
	require.NoError(t, err)
	require.Equal(t, models.OutcomeVerified, v.Outcome)
	return v
}

// pendingBooking creates a booking of 2000 at est-1 (50% deposit).
func (f *fixture) pendingBooking(t *testing.T) *models.Booking {
	t.Helper()
	v := f.verifiedPayment(t, "1000")
	res, err := f.machine.Create(context.Background(), testCustomer, testEstablishment, decimal.NewFromInt(2000), v)
	require.NoError(t, err)
	return res.Booking
}

func (f *fixture) confirmedBooking(t *testing.T) *BookingResult {
	t.Helper()
	b := f.pendingBooking(t)
	res, err := f.machine.Confirm(context.Background(), b.ID, testEstablishment)
	require.NoError(t, err)
	return res
}
