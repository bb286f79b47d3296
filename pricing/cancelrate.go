/*
cancelrate.go - Graduated cancellation-fee rate resolution

PURPOSE:
  Computes the cancellation-fee percentage for a plan on a given date.
  Two ingredients:
  - Gate dates decide WHETHER a fee can apply yet (cancel-fee start date
    or application deadline, plan-level winning over camp-level).
  - The rate table decides HOW MUCH, as a function of days remaining
    before the plan starts.

GATE SEMANTICS:
  cancel_fee_start_date gates inclusively: fees apply ON the configured
  date. apply_deadline gates exclusively: the deadline day itself is the
  last free day, fees apply strictly after it.

TABLE SEMANTICS:
  Thresholds are keyed by "days before start" (0 = the day of, 1 = one
  day before, ...). The smallest configured bucket covering the remaining
  days wins. On or after the start date the rate is always 100%. Beyond
  the largest bucket no fee applies yet. An empty table never yields a
  fee, regardless of gates.

ERRORS:
  None. Every input combination resolves to a defined rate; absent
  configuration degrades to zero.
*/
package pricing

import "github.com/shopspring/decimal"

// =============================================================================
// RATE TABLE
// =============================================================================

// RateThreshold is one row of a graduated schedule: the fee percentage
// that applies when no more than DaysBefore days remain.
type RateThreshold struct {
	DaysBefore int
	Rate       decimal.Decimal // percent, 0-100
}

// RateTable is a graduated schedule sorted ascending by DaysBefore.
type RateTable []RateThreshold

var fullRate = decimal.NewFromInt(100)

// RateFor returns the percentage for the given days-before-start count.
func (t RateTable) RateFor(daysBefore int) decimal.Decimal {
	if len(t) == 0 {
		return decimal.Zero
	}
	if daysBefore <= 0 {
		// On or after the start date.
		return fullRate
	}
	for _, th := range t {
		if th.DaysBefore >= daysBefore {
			return clampRate(th.Rate)
		}
	}
	// Further out than the largest bucket: no fee yet.
	return decimal.Zero
}

func clampRate(r decimal.Decimal) decimal.Decimal {
	if r.IsNegative() {
		return decimal.Zero
	}
	if r.GreaterThan(fullRate) {
		return fullRate
	}
	return r
}

// =============================================================================
// RESOLUTION
// =============================================================================

// ResolveRate returns the cancellation-fee percentage for a plan as of a
// date, as a 2-fraction-digit decimal in [0, 100].
//
// Exactly one gate source is consulted, in priority order: the plan's
// cancel-fee start date, the grouping's, the plan's apply deadline, the
// grouping's. With no gate configured the table is consulted directly.
func ResolveRate(plan PlanConfig, asOf Date) decimal.Decimal {
	grouping := plan.Grouping
	if grouping == nil {
		grouping = &GroupingConfig{}
	}

	switch {
	case plan.CancelFeeStartDate != nil:
		if asOf.Before(*plan.CancelFeeStartDate) {
			return decimal.Zero.Round(2)
		}
	case grouping.CancelFeeStartDate != nil:
		if asOf.Before(*grouping.CancelFeeStartDate) {
			return decimal.Zero.Round(2)
		}
	case plan.ApplyDeadline != nil:
		if !asOf.After(*plan.ApplyDeadline) {
			return decimal.Zero.Round(2)
		}
	case grouping.ApplyDeadline != nil:
		if !asOf.After(*grouping.ApplyDeadline) {
			return decimal.Zero.Round(2)
		}
	}

	daysBefore := asOf.DaysUntil(plan.StartDate)
	return plan.RateTable.RateFor(daysBefore).Round(2)
}
