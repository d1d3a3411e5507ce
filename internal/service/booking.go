package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-verification/internal/interfaces"
	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

type BookingDeps struct {
	Bookings       interfaces.BookingRepository
	Establishments interfaces.EstablishmentRepository
	Registry       *TransactionRegistry
	Credentials    *CredentialIssuer
	Refunds        RefundPolicyResolver
	Deposits       DepositPolicy
	Locker         interfaces.Locker
	Publisher      interfaces.EventPublisher
	Notifier       interfaces.Notifier
	Now            func() time.Time
}

// BookingResult carries the booking after an operation plus any collaborator
// failures that happened after the change was persisted.
type BookingResult struct {
	Booking    *models.Booking
	Credential string
	Warnings   []string
}

func (r *BookingResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// BookingStateMachine owns every booking transition. Transitions on one booking
// are serialized by the locker and by the conditional update in the repository.
type BookingStateMachine struct {
	bookings       interfaces.BookingRepository
	establishments interfaces.EstablishmentRepository
	registry       *TransactionRegistry
	credentials    *CredentialIssuer
	refunds        RefundPolicyResolver
	deposits       DepositPolicy
	locker         interfaces.Locker
	publisher      interfaces.EventPublisher
	notifier       interfaces.Notifier
	now            func() time.Time
}

func NewBookingStateMachine(d BookingDeps) *BookingStateMachine {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &BookingStateMachine{
		bookings:       d.Bookings,
		establishments: d.Establishments,
		registry:       d.Registry,
		credentials:    d.Credentials,
		refunds:        d.Refunds,
		deposits:       d.Deposits,
		locker:         d.Locker,
		publisher:      d.Publisher,
		notifier:       d.Notifier,
		now:            d.Now,
	}
}

// Create opens a PENDING booking backed by a strict, verified payment that is
// not yet bound to any other booking.
func (m *BookingStateMachine) Create(ctx context.Context, customerID, establishmentID string, amount decimal.Decimal, verification *models.PaymentVerification) (*BookingResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "booking.create")
	defer span.End()

	if customerID == "" {
		return nil, models.NewValidationError("customer_id", "is required")
	}
	if establishmentID == "" {
		return nil, models.NewValidationError("establishment_id", "is required")
	}
	if err := validateAmount("amount", amount); err != nil {
		return nil, err
	}
	if !verification.Verified() {
		return nil, models.ErrPaymentVerificationRequired
	}

	// The presented verification must match what the engine recorded.
	stored, err := m.registry.Verification(ctx, verification.CorrelationRef)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrPaymentVerificationRequired
	}
	if err != nil {
		return nil, err
	}
	if !stored.Verified() || !stored.Strict || !stored.VerifiedAmount.Equal(verification.VerifiedAmount) {
		return nil, fmt.Errorf("%w: transaction %s was not verified in strict mode", models.ErrPaymentVerificationRequired, stored.CorrelationRef)
	}

	req, err := m.registry.Lookup(ctx, stored.CorrelationRef)
	if err != nil {
		return nil, err
	}
	if req.RequesterIdentity != customerID {
		return nil, fmt.Errorf("%w: transaction %s was paid by another customer", models.ErrPaymentVerificationRequired, req.CorrelationRef)
	}
	if req.RelatedBookingID != "" {
		return nil, models.ErrVerificationAlreadyBound
	}

	est, err := m.establishments.GetEstablishment(ctx, establishmentID)
	if err != nil {
		return nil, fmt.Errorf("establishment %s: %w", establishmentID, err)
	}
	if req.PayeeIdentifier != est.PayeeIdentifier {
		return nil, models.NewValidationError("transaction_ref", "payment was made to a different payee")
	}
	deposit := m.deposits.Deposit(amount, est)
	if !stored.VerifiedAmount.Equal(deposit) {
		return nil, models.NewValidationError("amount",
			fmt.Sprintf("verified payment %s does not match required deposit %s",
				stored.VerifiedAmount.StringFixed(amountPlaces), deposit.StringFixed(amountPlaces)))
	}

	now := m.now()
	b := &models.Booking{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		EstablishmentID: establishmentID,
		Amount:          amount,
		PaymentAmount:   deposit,
		Status:          models.BookingPending,
		TransactionRef:  stored.CorrelationRef,
		RefundStatus:    models.RefundNotApplicable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.bookings.CreateBound(ctx, b); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("booking_id", b.ID))

	telemetry.BookingTransitions.WithLabelValues("", string(models.BookingPending)).Inc()
	telemetry.Logger.Info("Booking created",
		zap.String("booking_id", b.ID),
		zap.String("transaction_ref", b.TransactionRef),
		zap.String("payment_amount", b.PaymentAmount.StringFixed(amountPlaces)),
	)

	result := &BookingResult{Booking: b}
	m.publish(ctx, models.EventBookingCreated, b, "", result)
	return result, nil
}

func (m *BookingStateMachine) Get(ctx context.Context, bookingID string) (*models.Booking, error) {
	return m.bookings.GetBooking(ctx, bookingID)
}

// Confirm accepts a PENDING booking on behalf of its establishment and issues
// the visit credential.
func (m *BookingStateMachine) Confirm(ctx context.Context, bookingID, establishmentID string) (*BookingResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "booking.confirm")
	defer span.End()

	var result *BookingResult
	err := m.withBooking(ctx, bookingID, func(b *models.Booking) error {
		if b.EstablishmentID != establishmentID {
			return models.ErrNotOwner
		}
		now := m.now()
		previous := b.Status
		if err := m.transition(ctx, b, models.BookingTransition{To: models.BookingConfirmed, At: now, ConfirmedAt: &now}); err != nil {
			return err
		}

		result = &BookingResult{Booking: b}
		m.issueAndDeliver(ctx, b, result)
		m.publish(ctx, models.EventBookingConfirmed, b, previous, result)
		return nil
	})
	return result, err
}

func (m *BookingStateMachine) Reject(ctx context.Context, bookingID, establishmentID, reason string) (*BookingResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "booking.reject")
	defer span.End()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.NewValidationError("reason", "is required")
	}

	var result *BookingResult
	err := m.withBooking(ctx, bookingID, func(b *models.Booking) error {
		if b.EstablishmentID != establishmentID {
			return models.ErrNotOwner
		}
		previous := b.Status
		if err := m.transition(ctx, b, models.BookingTransition{To: models.BookingRejected, At: m.now(), RejectionReason: reason}); err != nil {
			return err
		}
		result = &BookingResult{Booking: b}
		m.publish(ctx, models.EventBookingRejected, b, previous, result)
		return nil
	})
	return result, err
}

// Cancel is the customer's exit before the visit. The refund classification is
// taken from the state the booking was in when cancelled.
func (m *BookingStateMachine) Cancel(ctx context.Context, bookingID, customerID string) (*BookingResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "booking.cancel")
	defer span.End()

	var result *BookingResult
	err := m.withBooking(ctx, bookingID, func(b *models.Booking) error {
		if b.CustomerID != customerID {
			return models.ErrNotOwner
		}
		now := m.now()
		previous := b.Status
		refund := m.refunds.Resolve(b, now)
		t := models.BookingTransition{To: models.BookingCancelled, At: now, CancelledAt: &now, RefundStatus: refund}
		if err := m.transition(ctx, b, t); err != nil {
			return err
		}
		result = &BookingResult{Booking: b}
		m.publish(ctx, models.EventBookingCancelled, b, previous, result)
		return nil
	})
	return result, err
}

// MarkVisitCompleted redeems the QR credential of a CONFIRMED booking.
func (m *BookingStateMachine) MarkVisitCompleted(ctx context.Context, bookingID, establishmentID, presentedCredential string) (*BookingResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "booking.complete_visit")
	defer span.End()

	if presentedCredential == "" {
		return nil, models.NewValidationError("presented_credential", "is required")
	}

	var result *BookingResult
	err := m.withBooking(ctx, bookingID, func(b *models.Booking) error {
		if b.EstablishmentID != establishmentID {
			return models.ErrNotOwner
		}
		if !b.Status.CanTransitionTo(models.BookingCompleted) {
			return &models.InvalidTransitionError{BookingID: b.ID, Current: b.Status, Target: models.BookingCompleted}
		}
		ok, err := m.credentials.Validate(ctx, b.ID, presentedCredential)
		if err != nil {
			return err
		}
		if !ok {
			telemetry.Logger.Warn("Rejected QR credential", zap.String("booking_id", b.ID))
			return models.ErrInvalidCredential
		}

		now := m.now()
		previous := b.Status
		if err := m.transition(ctx, b, models.BookingTransition{To: models.BookingCompleted, At: now, VisitCompletedAt: &now}); err != nil {
			return err
		}
		result = &BookingResult{Booking: b}
		m.publish(ctx, models.EventBookingCompleted, b, previous, result)
		return nil
	})
	return result, err
}

// ResendCredential delivers the issued credential again. A CONFIRMED booking
// whose credential could not be issued at confirmation gets it issued now.
func (m *BookingStateMachine) ResendCredential(ctx context.Context, bookingID string) (*BookingResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "booking.resend_credential")
	defer span.End()

	var result *BookingResult
	err := m.withBooking(ctx, bookingID, func(b *models.Booking) error {
		if b.Status != models.BookingConfirmed {
			return fmt.Errorf("%w: booking %s is %s", models.ErrNotConfirmed, b.ID, b.Status)
		}
		result = &BookingResult{Booking: b}
		if b.QRCredential == "" {
			m.issueAndDeliver(ctx, b, result)
			if b.QRCredential == "" {
				return errors.New("qr credential could not be issued")
			}
			return nil
		}
		result.Credential = b.QRCredential
		m.notifyCredential(ctx, b, result)
		return nil
	})
	return result, err
}

func (m *BookingStateMachine) withBooking(ctx context.Context, bookingID string, fn func(b *models.Booking) error) error {
	unlock, err := m.locker.Lock(ctx, bookingID)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := m.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	return fn(b)
}

func (m *BookingStateMachine) transition(ctx context.Context, b *models.Booking, t models.BookingTransition) error {
	if !b.Status.CanTransitionTo(t.To) {
		return &models.InvalidTransitionError{BookingID: b.ID, Current: b.Status, Target: t.To}
	}
	t.From = b.Status

	rows, err := m.bookings.TransitionBooking(ctx, b.ID, t)
	if err != nil {
		return fmt.Errorf("transition booking %s: %w", b.ID, err)
	}
	if rows == 0 {
		current, err := m.bookings.GetBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		return &models.InvalidTransitionError{BookingID: b.ID, Current: current.Status, Target: t.To}
	}
	t.Apply(b)

	telemetry.BookingTransitions.WithLabelValues(string(t.From), string(t.To)).Inc()
	telemetry.Logger.Info("Booking state transition",
		zap.String("booking_id", b.ID),
		zap.String("from_state", string(t.From)),
		zap.String("to_state", string(t.To)),
	)
	return nil
}

func (m *BookingStateMachine) issueAndDeliver(ctx context.Context, b *models.Booking, result *BookingResult) {
	cred, err := m.credentials.Issue(ctx, b.ID)
	if err != nil {
		telemetry.Logger.Error("QR credential issuance failed", zap.String("booking_id", b.ID), zap.Error(err))
		result.warn("qr credential issuance failed, resend the credential to retry: %v", err)
		return
	}
	b.QRCredential = cred
	result.Credential = cred
	m.notifyCredential(ctx, b, result)
}

func (m *BookingStateMachine) notifyCredential(ctx context.Context, b *models.Booking, result *BookingResult) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.NotifyCredential(ctx, models.CredentialNotification{
		BookingID:       b.ID,
		CustomerID:      b.CustomerID,
		EstablishmentID: b.EstablishmentID,
		Credential:      b.QRCredential,
		RemainingAmount: b.RemainingBalance().StringFixed(amountPlaces),
		IssuedAt:        m.now(),
	})
	if err != nil {
		telemetry.CollaboratorFailures.WithLabelValues("notifier").Inc()
		telemetry.Logger.Warn("Credential delivery failed", zap.String("booking_id", b.ID), zap.Error(err))
		result.warn("credential delivery failed: %v", err)
	}
}

func (m *BookingStateMachine) publish(ctx context.Context, event string, b *models.Booking, previous models.BookingStatus, result *BookingResult) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.Publish(ctx, models.StateChangeEvent{
		Event:           event,
		BookingID:       b.ID,
		CustomerID:      b.CustomerID,
		EstablishmentID: b.EstablishmentID,
		State:           b.Status,
		PreviousState:   previous,
		RefundStatus:    b.RefundStatus,
		TransactionRef:  b.TransactionRef,
		Timestamp:       m.now(),
	})
	if err != nil {
		telemetry.CollaboratorFailures.WithLabelValues("publisher").Inc()
		telemetry.Logger.Warn("Failed to publish booking event",
			zap.String("booking_id", b.ID),
			zap.String("event", event),
			zap.Error(err),
		)
		result.warn("%s event not published: %v", event, err)
	}
}
