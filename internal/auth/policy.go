package auth

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleOperator Role = "OPERATOR"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleOperator, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller. Operators act for one establishment.
type Actor struct {
	ID              string
	Role            Role
	EstablishmentID string
}

type Operation string

const (
	OpGeneratePaymentRequest Operation = "payment.generate_request"
	OpVerifyPayment          Operation = "payment.verify"
	OpViewPaymentStatus      Operation = "payment.status"
	OpCreateBooking          Operation = "booking.create"
	OpViewBooking            Operation = "booking.view"
	OpConfirmBooking         Operation = "booking.confirm"
	OpRejectBooking          Operation = "booking.reject"
	OpCancelBooking          Operation = "booking.cancel"
	OpCompleteVisit          Operation = "booking.complete_visit"
	OpResendCredential       Operation = "booking.resend_credential"
)

// Resource identifies who owns the thing being acted on. Empty fields mean
// the resource does not exist yet (e.g. a booking being created).
type Resource struct {
	CustomerID      string
	EstablishmentID string
}

// Policy is the one place that decides whether an actor may run an operation.
type Policy struct{}

func (Policy) Authorize(actor Actor, op Operation, res Resource) bool {
	if actor.ID == "" {
		return false
	}
	if actor.Role == RoleAdmin {
		return true
	}

	switch op {
	case OpGeneratePaymentRequest, OpVerifyPayment, OpCreateBooking:
		return actor.Role == RoleCustomer && (res.CustomerID == "" || res.CustomerID == actor.ID)
	case OpCancelBooking:
		return actor.Role == RoleCustomer && res.CustomerID == actor.ID
	case OpViewPaymentStatus, OpViewBooking, OpResendCredential:
		return ownsAsCustomer(actor, res) || operatesFor(actor, res)
	case OpConfirmBooking, OpRejectBooking, OpCompleteVisit:
		return operatesFor(actor, res)
	}
	return false
}

func ownsAsCustomer(actor Actor, res Resource) bool {
	return actor.Role == RoleCustomer && res.CustomerID != "" && res.CustomerID == actor.ID
}

func operatesFor(actor Actor, res Resource) bool {
	return actor.Role == RoleOperator && actor.EstablishmentID != "" && res.EstablishmentID == actor.EstablishmentID
}
