package models

import "github.com/shopspring/decimal"

// Establishment is the slice of establishment configuration the booking core reads.
// Establishments themselves are managed elsewhere.
type Establishment struct {
	ID              string
	Name            string
	PayeeIdentifier string
	// DepositPercent of the total price required upfront. Zero means use the default.
	DepositPercent decimal.Decimal
}
