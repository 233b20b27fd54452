// Package core provides the domain types shared by the aggregation engine.
//
// This file contains the signed-delta helpers used to apply and reverse
// contributions to the running aggregates.
package core

import (
	"github.com/shopspring/decimal"
)

// Sign selects whether a contribution is applied (+1) or reversed (-1).
type Sign int

const (
	Apply   Sign = 1
	Reverse Sign = -1
)

func (s Sign) IsValid() bool {
	return s == Apply || s == Reverse
}

// Of returns v for Apply and -v for Reverse.
func (s Sign) Of(v decimal.Decimal) decimal.Decimal {
	if s == Reverse {
		return v.Neg()
	}
	return v
}

func (s Sign) String() string {
	if s == Reverse {
		return "reverse"
	}
	return "apply"
}

// ApproxEqual compares two amounts within tolerance. Installment parts are
// rounded by decimal division, so their sum is only approximately the total.
func ApproxEqual(a, b decimal.Decimal, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
