/*
Package generic provides the domain-agnostic pieces of the audit engine.

PURPOSE:
  Calendar math, interval handling, day amounts and error types that the
  schedule, audit, resolve and accounting packages build on. Nothing here
  knows about participants or submissions.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: a quantity of days backed by decimal.Decimal
  - Unit: the unit an Amount is counted in

DESIGN PRINCIPLES:
  1. Day granularity: time of day never leaks into comparisons
  2. Precision: decimal.Decimal for rates so reports don't drift
  3. Purity: every function copies its inputs

SEE ALSO:
  - time.go: TimePoint and the Sunday rules
  - period.go: Period, merging, effective weeks, padding
  - errors.go: sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit (slip days)
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const UnitDays Unit = "days"

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for an integral number of days.
func Days(n int) Amount { return NewAmountFromInt(n, UnitDays) }

func (a Amount) Add(b Amount) Amount { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) IsZero() bool        { return a.Value.IsZero() }

// Ratio divides two amounts and rounds to places decimals. A zero divisor
// yields zero.
func (a Amount) Ratio(b Amount, places int32) decimal.Decimal {
	if b.Value.IsZero() {
		return decimal.Zero
	}
	return a.Value.DivRound(b.Value, places)
}

func (a Amount) String() string { return a.Value.String() }
