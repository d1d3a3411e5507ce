package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akylbek/payment-system/booking-verification/internal/handlers"
	"github.com/akylbek/payment-system/booking-verification/internal/middlewares"
	"github.com/akylbek/payment-system/booking-verification/internal/service"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

type Services struct {
	Payments *service.PaymentService
	Registry *service.TransactionRegistry
	Engine   *service.VerificationEngine
	Bookings *service.BookingStateMachine
}

func NewRouter(svc Services, jwtSecret string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "booking-verification"})
	})

	paymentHandler := handlers.NewPaymentHandler(svc.Payments, svc.Registry, svc.Engine)
	stateHandler := handlers.NewPaymentStateHandler(svc.Registry)
	bookingHandler := handlers.NewBookingHandler(svc.Bookings, svc.Engine)

	payments := r.Group("/payments", middlewares.JWTAuth(jwtSecret))
	payments.POST("/generate-request", paymentHandler.GenerateRequest)
	payments.POST("/verify", paymentHandler.Verify)
	payments.POST("/verify-strict", paymentHandler.VerifyStrict)
	payments.GET("/status/:ref", stateHandler.GetPaymentStatus)

	bookings := r.Group("/bookings", middlewares.JWTAuth(jwtSecret))
	bookings.POST("", bookingHandler.Create)
	bookings.POST("/redeem", bookingHandler.Redeem)
	bookings.GET("/:id", bookingHandler.Get)
	bookings.POST("/:id/confirm", bookingHandler.Confirm)
	bookings.POST("/:id/reject", bookingHandler.Reject)
	bookings.PUT("/:id/cancel", bookingHandler.Cancel)
	bookings.PUT("/:id/mark-completed", bookingHandler.MarkCompleted)
	bookings.POST("/:id/credential/resend", bookingHandler.ResendCredential)

	return r
}
