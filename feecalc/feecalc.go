// Package feecalc computes the platform referral fee for a quoted job price.
//
// The schedule is tiered by price band; each band carries a percentage plus a
// floor and a cap. This package is the single source of truth for fee math:
// the ledger recomputes from the quote price here and never accepts a
// client-supplied amount.
package feecalc

import "github.com/shopspring/decimal"

// Band is one row of the fee schedule. Min is inclusive; a price belongs to
// the highest band whose Min it reaches.
type Band struct {
	Min        decimal.Decimal
	Percentage decimal.Decimal
	Floor      decimal.Decimal
	Cap        decimal.Decimal
}

var schedule = []Band{
	{Min: decimal.NewFromInt(10000), Percentage: dec("0.01"), Floor: decimal.NewFromInt(200), Cap: decimal.NewFromInt(300)},
	{Min: decimal.NewFromInt(5000), Percentage: dec("0.02"), Floor: decimal.NewFromInt(150), Cap: decimal.NewFromInt(200)},
	{Min: decimal.NewFromInt(1000), Percentage: dec("0.03"), Floor: decimal.NewFromInt(50), Cap: decimal.NewFromInt(150)},
	{Min: decimal.Zero, Percentage: dec("0.05"), Floor: decimal.NewFromInt(5), Cap: decimal.NewFromInt(50)},
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// BandFor returns the schedule band applicable to the given price. Boundary
// prices (exactly 1000, 5000, 10000) fall into the higher band.
func BandFor(price decimal.Decimal) Band {
	for _, b := range schedule {
		if price.GreaterThanOrEqual(b.Min) {
			return b
		}
	}
	return schedule[len(schedule)-1]
}

// Calculate returns clamp(price * percentage, floor, cap) for the applicable
// band, rounded to two decimal places with half rounded up.
func Calculate(price decimal.Decimal) decimal.Decimal {
	band := BandFor(price)

	fee := price.Mul(band.Percentage)
	if fee.LessThan(band.Floor) {
		fee = band.Floor
	}
	if fee.GreaterThan(band.Cap) {
		fee = band.Cap
	}

	return fee.Round(2)
}
