package service

import (
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/booking-verification/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DepositPolicy computes the upfront payment for a booking.
type DepositPolicy struct {
	DefaultPercent decimal.Decimal
}

func (p DepositPolicy) Deposit(amount decimal.Decimal, est *models.Establishment) decimal.Decimal {
	pct := p.DefaultPercent
	if est != nil && est.DepositPercent.IsPositive() {
		pct = est.DepositPercent
	}
	return amount.Mul(pct).Div(hundred).Round(amountPlaces)
}
