package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/booking-verification/internal/api"
	"github.com/akylbek/payment-system/booking-verification/internal/cache"
	"github.com/akylbek/payment-system/booking-verification/internal/config"
	"github.com/akylbek/payment-system/booking-verification/internal/events"
	"github.com/akylbek/payment-system/booking-verification/internal/interfaces"
	"github.com/akylbek/payment-system/booking-verification/internal/lock"
	"github.com/akylbek/payment-system/booking-verification/internal/repository"
	"github.com/akylbek/payment-system/booking-verification/internal/repository/memory"
	"github.com/akylbek/payment-system/booking-verification/internal/service"
	"github.com/akylbek/payment-system/booking-verification/internal/telemetry"
)

type stores struct {
	requests       interfaces.PaymentRequestRepository
	bookings       interfaces.BookingRepository
	establishments interfaces.EstablishmentRepository
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize telemetry
	if err := telemetry.InitTelemetry("booking-verification", cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Booking Verification")

	st, closeDB := openStores(cfg)
	defer closeDB()

	// Per-booking locks and the credential cache live in Redis when configured
	var locker interfaces.Locker = lock.NewLocalLocker()
	var credCache interfaces.CredentialCache
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisURL,
		})
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient, cfg.BookingLockTTL)
		credCache = cache.NewCredentialCache(redisClient, cfg.CredentialCacheTTL)
	} else {
		telemetry.Logger.Warn("REDIS_URL not set, using process-local booking locks")
	}

	// Connect to NATS
	var notifier interfaces.Notifier = events.Discard{}
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		notifier = events.NewNATSNotifier(nc)
	}

	publisher, closePublisher := openPublisher(cfg)
	defer closePublisher()

	now := time.Now
	registry := service.NewTransactionRegistry(st.requests, now)
	engine := service.NewVerificationEngine(registry, now)
	machine := service.NewBookingStateMachine(service.BookingDeps{
		Bookings:       st.bookings,
		Establishments: st.establishments,
		Registry:       registry,
		Credentials:    service.NewCredentialIssuer(st.bookings, credCache),
		Refunds:        service.RefundPolicyResolver{Window: cfg.RefundWindow},
		Deposits:       service.DepositPolicy{DefaultPercent: cfg.DepositPercent()},
		Locker:         locker,
		Publisher:      publisher,
		Notifier:       notifier,
		Now:            now,
	})
	payments := service.NewPaymentService(registry, st.establishments, st.bookings, service.PaymentServiceConfig{
		TTL:              cfg.PaymentRequestTTL,
		Currency:         cfg.Currency,
		PayeeDisplayName: cfg.PayeeDisplayName,
	})

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.Services{
		Payments: payments,
		Registry: registry,
		Engine:   engine,
		Bookings: machine,
	}, cfg.JWTSecret)

	// Setup HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		telemetry.Logger.Info("Booking Verification starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}

func openStores(cfg *config.Config) (stores, func()) {
	if cfg.DatabaseURL == "" {
		telemetry.Logger.Warn("DATABASE_URL not set, using in-memory store")
		m := memory.NewStore()
		return stores{requests: m, bookings: m, establishments: m}, func() {}
	}

	// Connect to PostgreSQL
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// bookings references payment_requests, so it is created last
	establishments := repository.NewEstablishmentRepository(db)
	requests := repository.NewPaymentRequestRepository(db)
	bookings := repository.NewBookingRepository(db)
	for _, r := range []interface{ InitDB() error }{establishments, requests, bookings} {
		if err := r.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
	}
	return stores{requests: requests, bookings: bookings, establishments: establishments}, func() { db.Close() }
}

func openPublisher(cfg *config.Config) (interfaces.EventPublisher, func()) {
	switch cfg.EventBroker {
	case "kafka":
		p := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		return p, func() { p.Close() }
	case "rabbitmq":
		p, err := events.NewAMQPPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		return p, func() { p.Close() }
	}
	telemetry.Logger.Warn("EVENT_BROKER is none, booking events are not published")
	return events.Discard{}, func() {}
}
