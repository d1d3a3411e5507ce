package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/booking-verification/internal/interfaces"
	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

type PaymentIntent struct {
	TransactionRef string          `json:"transactionRef"`
	UpiID          string          `json:"upiId"`
	Amount         decimal.Decimal `json:"amount"`
	ExpiryTime     time.Time       `json:"expiryTime"`
	UpiPaymentURL  string          `json:"upiPaymentUrl"`
}

type PaymentServiceConfig struct {
	TTL              time.Duration
	Currency         string
	PayeeDisplayName string
}

// PaymentService turns a customer's intent to pay an establishment into a
// registered payment request and a UPI deep link.
type PaymentService struct {
	registry       *TransactionRegistry
	establishments interfaces.EstablishmentRepository
	bookings       interfaces.BookingRepository
	cfg            PaymentServiceConfig
}

func NewPaymentService(registry *TransactionRegistry, establishments interfaces.EstablishmentRepository, bookings interfaces.BookingRepository, cfg PaymentServiceConfig) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &PaymentService{registry: registry, establishments: establishments, bookings: bookings, cfg: cfg}
}

func (s *PaymentService) GenerateRequest(ctx context.Context, requesterID, establishmentID string, amount decimal.Decimal, bookingID string) (*PaymentIntent, error) {
	if establishmentID == "" {
		return nil, models.NewValidationError("establishment_id", "is required")
	}
	est, err := s.establishments.GetEstablishment(ctx, establishmentID)
	if err != nil {
		return nil, fmt.Errorf("establishment %s: %w", establishmentID, err)
	}
	if strings.TrimSpace(est.PayeeIdentifier) == "" {
		return nil, models.ErrPayeeNotConfigured
	}

	if bookingID != "" {
		b, err := s.bookings.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, fmt.Errorf("booking %s: %w", bookingID, err)
		}
		if b.EstablishmentID != establishmentID || b.CustomerID != requesterID {
			return nil, models.NewValidationError("booking_id", "does not belong to this customer and establishment")
		}
	}

	req, err := s.registry.Issue(ctx, IssueRequest{
		PayeeIdentifier:   est.PayeeIdentifier,
		ExpectedAmount:    amount,
		RequesterIdentity: requesterID,
		RelatedBookingID:  bookingID,
		TTL:               s.cfg.TTL,
	})
	if err != nil {
		return nil, err
	}

	name := s.cfg.PayeeDisplayName
	if name == "" {
		name = est.Name
	}
	return &PaymentIntent{
		TransactionRef: req.CorrelationRef,
		UpiID:          req.PayeeIdentifier,
		Amount:         req.ExpectedAmount,
		ExpiryTime:     req.ExpiresAt,
		UpiPaymentURL:  UPIPaymentURL(req, name, s.cfg.Currency),
	}, nil
}

// UPIPaymentURL builds the upi://pay deep link that payment apps open.
func UPIPaymentURL(req *models.PaymentRequest, payeeName, currency string) string {
	q := url.Values{}
	q.Set("pa", req.PayeeIdentifier)
	if payeeName != "" {
		q.Set("pn", payeeName)
	}
	q.Set("am", req.ExpectedAmount.StringFixed(amountPlaces))
	q.Set("cu", currency)
	q.Set("tr", req.CorrelationRef)
	q.Set("tn", "Booking payment "+req.CorrelationRef)
	// UPI apps expect %20 rather than + for spaces.
	return "upi://pay?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}
