// Package memory is an in-process store with the same atomicity guarantees as
// the Postgres repositories. It backs local runs without DATABASE_URL and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

type Store struct {
	mu             sync.Mutex
	requests       map[string]models.PaymentRequest
	verifications  map[string]models.PaymentVerification
	verifiedExtIDs map[string]string
	bookings       map[string]models.Booking
	establishments map[string]models.Establishment
}

func NewStore() *Store {
	return &Store{
		requests:       make(map[string]models.PaymentRequest),
		verifications:  make(map[string]models.PaymentVerification),
		verifiedExtIDs: make(map[string]string),
		bookings:       make(map[string]models.Booking),
		establishments: make(map[string]models.Establishment),
	}
}

func (s *Store) PutEstablishment(e models.Establishment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.establishments[e.ID] = e
}

func (s *Store) GetEstablishment(_ context.Context, id string) (*models.Establishment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.establishments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &e, nil
}

func (s *Store) InsertRequest(_ context.Context, req *models.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[req.CorrelationRef]; ok {
		return models.NewValidationError("correlation_ref", "already exists")
	}
	s.requests[req.CorrelationRef] = *req
	return nil
}

func (s *Store) GetRequest(_ context.Context, ref string) (*models.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[ref]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &req, nil
}

func (s *Store) TryConsume(_ context.Context, ref string, now time.Time) (*models.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[ref]
	switch {
	case !ok:
		return nil, models.ErrNotFound
	case req.Consumed:
		return nil, models.ErrAlreadyConsumed
	case req.ExpiredAt(now):
		return nil, models.ErrExpired
	}
	req.Consumed = true
	req.ConsumedAt = &now
	s.requests[ref] = req
	return &req, nil
}

func (s *Store) SaveVerification(_ context.Context, v *models.PaymentVerification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifications[v.CorrelationRef]; ok {
		return models.NewValidationError("correlation_ref", "verification already recorded")
	}
	if v.Outcome == models.OutcomeVerified {
		if _, used := s.verifiedExtIDs[v.ExternalTransactionID]; used {
			return models.ErrDuplicateExternalID
		}
		s.verifiedExtIDs[v.ExternalTransactionID] = v.CorrelationRef
	}
	s.verifications[v.CorrelationRef] = *v
	return nil
}

func (s *Store) GetVerification(_ context.Context, ref string) (*models.PaymentVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.verifications[ref]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &v, nil
}

func (s *Store) CreateBound(_ context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[b.TransactionRef]
	if !ok || !req.Consumed || req.RelatedBookingID != "" {
		return models.ErrVerificationAlreadyBound
	}
	if _, exists := s.bookings[b.ID]; exists {
		return models.NewValidationError("booking_id", "already exists")
	}
	req.RelatedBookingID = b.ID
	s.requests[b.TransactionRef] = req
	s.bookings[b.ID] = *b
	return nil
}

func (s *Store) GetBooking(_ context.Context, id string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &b, nil
}

func (s *Store) TransitionBooking(_ context.Context, id string, t models.BookingTransition) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != t.From {
		return 0, nil
	}
	t.Apply(&b)
	s.bookings[id] = b
	return 1, nil
}

func (s *Store) SetCredential(_ context.Context, id, cred string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.QRCredential != "" {
		return 0, nil
	}
	b.QRCredential = cred
	s.bookings[id] = b
	return 1, nil
}
