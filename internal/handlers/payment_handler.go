package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/booking-verification/internal/auth"
	"github.com/akylbek/payment-system/booking-verification/internal/middlewares"
	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/service"
)

type PaymentHandler struct {
	payments *service.PaymentService
	registry *service.TransactionRegistry
	engine   *service.VerificationEngine
	policy   auth.Policy
}

func NewPaymentHandler(payments *service.PaymentService, registry *service.TransactionRegistry, engine *service.VerificationEngine) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		registry: registry,
		engine:   engine,
	}
}

type generateRequestBody struct {
	EstablishmentID string          `json:"establishmentId" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	BookingID       string          `json:"bookingId"`
}

func (h *PaymentHandler) GenerateRequest(c *gin.Context) {
	var body generateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	actor := middlewares.Actor(c)
	if !h.policy.Authorize(actor, auth.OpGeneratePaymentRequest, auth.Resource{}) {
		forbidden(c)
		return
	}

	intent, err := h.payments.GenerateRequest(c.Request.Context(), actor.ID, body.EstablishmentID, body.Amount, body.BookingID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

type verifyBody struct {
	TransactionRef   string          `json:"transactionRef" binding:"required"`
	UpiTransactionID string          `json:"upiTransactionId"`
	Amount           decimal.Decimal `json:"amount"`
}

type verifyResponse struct {
	TransactionRef string                     `json:"transactionRef"`
	Verified       bool                       `json:"verified"`
	Outcome        models.VerificationOutcome `json:"outcome"`
	Message        string                     `json:"message"`
	VerifiedAt     *time.Time                 `json:"verifiedAt,omitempty"`
	Amount         *decimal.Decimal           `json:"amount,omitempty"`
}

// Verify is the legacy endpoint: it checks the reference but not the amount.
// Its results cannot back a booking.
func (h *PaymentHandler) Verify(c *gin.Context) {
	h.verify(c, false)
}

func (h *PaymentHandler) VerifyStrict(c *gin.Context) {
	h.verify(c, true)
}

func (h *PaymentHandler) verify(c *gin.Context, strict bool) {
	var body verifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()

	// Unknown references still get a verification outcome, so only an existing
	// request narrows the resource.
	var res auth.Resource
	req, err := h.registry.Lookup(ctx, body.TransactionRef)
	switch {
	case err == nil:
		res.CustomerID = req.RequesterIdentity
	case !errors.Is(err, models.ErrNotFound):
		respondError(c, err)
		return
	}
	if !h.policy.Authorize(middlewares.Actor(c), auth.OpVerifyPayment, res) {
		forbidden(c)
		return
	}

	v, err := h.engine.Verify(ctx, models.VerificationClaim{
		CorrelationRef:        body.TransactionRef,
		ExternalTransactionID: body.UpiTransactionID,
		ClaimedAmount:         body.Amount,
		Strict:                strict,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := verifyResponse{
		TransactionRef: v.CorrelationRef,
		Verified:       v.Verified(),
		Outcome:        v.Outcome,
		Message:        v.Message(),
	}
	if v.Verified() {
		resp.VerifiedAt = &v.VerifiedAt
		resp.Amount = &v.VerifiedAmount
	}
	c.JSON(http.StatusOK, resp)
}
