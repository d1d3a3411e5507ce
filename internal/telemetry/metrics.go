package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentRequestsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_requests_issued_total",
		Help: "Payment requests issued by the transaction registry.",
	})

	PaymentVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment verification attempts by mode and outcome.",
	}, []string{"mode", "outcome"})

	BookingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Persisted booking state transitions.",
	}, []string{"from", "to"})

	CollaboratorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collaborator_failures_total",
		Help: "Failed calls to event brokers and notifiers after a successful state change.",
	}, []string{"collaborator"})
)

func VerificationMode(strict bool) string {
	if strict {
		return "strict"
	}
	return "legacy"
}
