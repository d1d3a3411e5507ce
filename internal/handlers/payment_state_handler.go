package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akylbek/payment-system/booking-verification/internal/auth"
	"github.com/akylbek/payment-system/booking-verification/internal/middlewares"
	"github.com/akylbek/payment-system/booking-verification/internal/service"
)

type PaymentStateHandler struct {
	registry *service.TransactionRegistry
	policy   auth.Policy
}

func NewPaymentStateHandler(registry *service.TransactionRegistry) *PaymentStateHandler {
	return &PaymentStateHandler{registry: registry}
}

func (h *PaymentStateHandler) GetPaymentStatus(c *gin.Context) {
	ref := c.Param("ref")
	ctx := c.Request.Context()

	req, err := h.registry.Lookup(ctx, ref)
	if err != nil {
		respondError(c, err)
		return
	}
	if !h.policy.Authorize(middlewares.Actor(c), auth.OpViewPaymentStatus, auth.Resource{CustomerID: req.RequesterIdentity}) {
		forbidden(c)
		return
	}

	status, err := h.registry.Status(ctx, ref)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactionRef": ref,
		"status":         status,
		"amount":         req.ExpectedAmount,
		"expiryTime":     req.ExpiresAt,
	})
}
