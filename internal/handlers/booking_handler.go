package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/booking-verification/internal/auth"
	"github.com/akylbek/payment-system/booking-verification/internal/middlewares"
	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/service"
)

type BookingHandler struct {
	machine *service.BookingStateMachine
	engine  *service.VerificationEngine
	policy  auth.Policy
}

func NewBookingHandler(machine *service.BookingStateMachine, engine *service.VerificationEngine) *BookingHandler {
	return &BookingHandler{machine: machine, engine: engine}
}

type createBookingBody struct {
	EstablishmentID string          `json:"establishmentId" binding:"required"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionRef  string          `json:"transactionRef" binding:"required"`
}

type reasonBody struct {
	Reason string `json:"reason"`
}

type credentialBody struct {
	BookingID           string `json:"bookingId"`
	PresentedCredential string `json:"presentedCredential"`
}

func (h *BookingHandler) Create(c *gin.Context) {
	var body createBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	actor := middlewares.Actor(c)
	if !h.policy.Authorize(actor, auth.OpCreateBooking, auth.Resource{}) {
		forbidden(c)
		return
	}
	ctx := c.Request.Context()

	v, err := h.engine.Verification(ctx, body.TransactionRef)
	if errors.Is(err, models.ErrNotFound) {
		respondError(c, models.ErrPaymentVerificationRequired)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.machine.Create(ctx, actor.ID, body.EstablishmentID, body.Amount, v)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusCreated, actor, res, false)
}

func (h *BookingHandler) Get(c *gin.Context) {
	actor := middlewares.Actor(c)
	b, ok := h.load(c, actor, auth.OpViewBooking, c.Param("id"))
	if !ok {
		return
	}
	h.respond(c, http.StatusOK, actor, &service.BookingResult{Booking: b}, false)
}

func (h *BookingHandler) Confirm(c *gin.Context) {
	actor := middlewares.Actor(c)
	b, ok := h.load(c, actor, auth.OpConfirmBooking, c.Param("id"))
	if !ok {
		return
	}
	res, err := h.machine.Confirm(c.Request.Context(), b.ID, b.EstablishmentID)
	h.finish(c, actor, b, res, err)
}

func (h *BookingHandler) Reject(c *gin.Context) {
	var body reasonBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	actor := middlewares.Actor(c)
	b, ok := h.load(c, actor, auth.OpRejectBooking, c.Param("id"))
	if !ok {
		return
	}
	res, err := h.machine.Reject(c.Request.Context(), b.ID, b.EstablishmentID, body.Reason)
	h.finish(c, actor, b, res, err)
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	actor := middlewares.Actor(c)
	b, ok := h.load(c, actor, auth.OpCancelBooking, c.Param("id"))
	if !ok {
		return
	}
	res, err := h.machine.Cancel(c.Request.Context(), b.ID, b.CustomerID)
	h.finish(c, actor, b, res, err)
}

func (h *BookingHandler) MarkCompleted(c *gin.Context) {
	var body credentialBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	h.complete(c, c.Param("id"), body.PresentedCredential)
}

// Redeem is the scanner endpoint: the booking id travels with the credential.
func (h *BookingHandler) Redeem(c *gin.Context) {
	var body credentialBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	if body.BookingID == "" {
		respondError(c, models.NewValidationError("bookingId", "is required"))
		return
	}
	h.complete(c, body.BookingID, body.PresentedCredential)
}

func (h *BookingHandler) complete(c *gin.Context, bookingID, presented string) {
	actor := middlewares.Actor(c)
	b, ok := h.load(c, actor, auth.OpCompleteVisit, bookingID)
	if !ok {
		return
	}
	res, err := h.machine.MarkVisitCompleted(c.Request.Context(), b.ID, b.EstablishmentID, presented)
	// A spent credential must never scan as admitted, so a repeated redemption
	// is a conflict rather than an idempotent success.
	var te *models.InvalidTransitionError
	if errors.As(err, &te) {
		respondError(c, err)
		return
	}
	h.finish(c, actor, b, res, err)
}

func (h *BookingHandler) ResendCredential(c *gin.Context) {
	actor := middlewares.Actor(c)
	b, ok := h.load(c, actor, auth.OpResendCredential, c.Param("id"))
	if !ok {
		return
	}
	res, err := h.machine.ResendCredential(c.Request.Context(), b.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, actor, res, false)
}

// load fetches the booking and runs the single authorization check for op.
func (h *BookingHandler) load(c *gin.Context, actor auth.Actor, op auth.Operation, bookingID string) (*models.Booking, bool) {
	b, err := h.machine.Get(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	res := auth.Resource{CustomerID: b.CustomerID, EstablishmentID: b.EstablishmentID}
	if !h.policy.Authorize(actor, op, res) {
		forbidden(c)
		return nil, false
	}
	return b, true
}

// finish answers a transition. A repeated request for a transition that
// already happened gets the current booking back instead of a conflict.
func (h *BookingHandler) finish(c *gin.Context, actor auth.Actor, b *models.Booking, res *service.BookingResult, err error) {
	var te *models.InvalidTransitionError
	if errors.As(err, &te) && te.NoOp() {
		current, getErr := h.machine.Get(c.Request.Context(), b.ID)
		if getErr != nil {
			respondError(c, getErr)
			return
		}
		h.respond(c, http.StatusOK, actor, &service.BookingResult{Booking: current}, true)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	h.respond(c, http.StatusOK, actor, res, false)
}

func (h *BookingHandler) respond(c *gin.Context, status int, actor auth.Actor, res *service.BookingResult, idempotent bool) {
	body := gin.H{
		"booking":          res.Booking,
		"remainingBalance": res.Booking.RemainingBalance(),
	}
	// The credential is the customer's entry pass; operators never see it.
	if res.Credential != "" && canHoldCredential(actor, res.Booking) {
		body["qrCredential"] = res.Credential
	}
	if len(res.Warnings) > 0 {
		body["warnings"] = res.Warnings
	}
	if idempotent {
		body["idempotent"] = true
	}
	c.JSON(status, body)
}

func canHoldCredential(actor auth.Actor, b *models.Booking) bool {
	return actor.Role == auth.RoleAdmin || (actor.Role == auth.RoleCustomer && actor.ID == b.CustomerID)
}
