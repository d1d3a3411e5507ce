package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

func statusFor(err error) int {
	var ve *models.ValidationError
	var te *models.InvalidTransitionError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotOwner), errors.Is(err, models.ErrInvalidCredential):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &te),
		errors.Is(err, models.ErrVerificationAlreadyBound),
		errors.Is(err, models.ErrCredentialAlreadyIssued),
		errors.Is(err, models.ErrNotConfirmed),
		errors.Is(err, models.ErrBookingLocked):
		return http.StatusConflict
	case errors.Is(err, models.ErrPaymentVerificationRequired):
		return http.StatusPaymentRequired
	case errors.Is(err, models.ErrPayeeNotConfigured):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		telemetry.Logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

func badRequest(c *gin.Context, err error) {
	telemetry.Logger.Debug("Error decoding request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
}
