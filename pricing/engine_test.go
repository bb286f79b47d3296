/*
engine_test.go - Specification Tests for Price Composition

PURPOSE:
  Executable specification of Engine.Calculate: line subtotals,
  aggregate discounts, tax, adjustment, and the zero floors.

ORGANIZATION:
  1. Line Subtotals - stay, rentals, early-bird, travel, preentry
  2. Aggregate Discounts - sibling, payment, coupons, points
  3. Totals - tax flooring, adjustment, non-negative price
  4. Validation - malformed aggregates fail fast
  5. Determinism - same inputs, same breakdown
*/
package pricing_test

import (
	"reflect"
	"testing"
	"time"

	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

// planWithPC is summerPlan plus the flat PC rental fee.
func planWithPC() *pricing.PlanConfig {
	plan := summerPlan()
	plan.PCRentalFee = 5000
	return &plan
}

func standardStay() *pricing.StayPlan {
	return &pricing.StayPlan{
		ID:    "stay-std",
		Name:  "Standard Room",
		Price: 34500,
	}
}

// singleLineAggregate: one student, PC rental, 4000 points.
// Expected: total 39500, before-tax 35500, tax 3550, price 39050.
func singleLineAggregate() pricing.Aggregate {
	return pricing.Aggregate{
		ID:        "agg-1",
		AppliedAt: date(2026, time.June, 15),
		Lines: []pricing.LineItem{{
			ID:          "line-1",
			StudentName: "Hanako",
			Status:      pricing.StatusConfirmed,
			Plan:        planWithPC(),
			Stay:        standardStay(),
			PCRental:    true,
		}},
		PointsUsed: 4000,
	}
}

func mustCalculate(t *testing.T, e *pricing.Engine, agg pricing.Aggregate, asOf pricing.Date) *pricing.PriceBreakdown {
	t.Helper()
	b, err := e.Calculate(agg, asOf, nil)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}
	return b
}

func assertMoney(t *testing.T, got, want pricing.Money, field string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %d, want %d", field, got, want)
	}
}

// =============================================================================
// 1. LINE SUBTOTALS
// =============================================================================

func TestSpec_Line_StayPlusPCRental(t *testing.T) {
	// SPEC: "A line's total is stay price plus the plan's flat PC fee
	//        when the family opted in"

	e := pricing.NewEngine()
	b := mustCalculate(t, e, singleLineAggregate(), date(2026, time.July, 1))

	line := b.Lines["line-1"]
	assertMoney(t, line.Price, 34500, "line price")
	assertMoney(t, line.PCRentalFee, 5000, "pc rental fee")
	assertMoney(t, line.Total, 39500, "line total")
	assertMoney(t, line.RentalPrices.TotalPrice, 0, "rental total with pc rental")
}

func TestSpec_Line_MarketplaceRentals_ExcludedByPCRental(t *testing.T) {
	// SPEC: "The flat PC fee and marketplace rentals are mutually
	//        exclusive; opting into the PC fee drops the rentals"

	agg := singleLineAggregate()
	agg.Lines[0].Rentals = []pricing.RentalItem{
		{Name: "Sleeping bag", Price: 1200},
		{Name: "Boots", Price: 800},
	}

	e := pricing.NewEngine()

	// WHEN: PC rental selected, rentals are ignored
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))
	assertMoney(t, b.Lines["line-1"].Total, 39500, "total with pc rental")

	// WHEN: PC rental off, the rentals are itemized instead
	agg.Lines[0].PCRental = false
	b = mustCalculate(t, e, agg, date(2026, time.July, 1))
	line := b.Lines["line-1"]
	assertMoney(t, line.PCRentalFee, 0, "pc fee without pc rental")
	assertMoney(t, line.RentalPrices.TotalPrice, 2000, "rental total")
	if len(line.RentalPrices.Rentals) != 2 {
		t.Fatalf("rentals itemized = %d, want 2", len(line.RentalPrices.Rentals))
	}
	assertMoney(t, line.Total, 36500, "total with rentals")
}

func TestSpec_Line_EarlyBird_AnchoredToApplicationDate(t *testing.T) {
	// SPEC: "Early-bird lookups stay anchored to the original application
	//        date so recomputation never shifts them"

	agg := singleLineAggregate()
	agg.Lines[0].Stay.EarlyDiscounts = []pricing.EarlyDiscount{
		{Until: date(2026, time.May, 31), Amount: 3000},
		{Until: date(2026, time.June, 30), Amount: 1500},
	}
	agg.AppliedAt = date(2026, time.May, 20)

	e := pricing.NewEngine()

	// WHEN: Calculating long after both windows closed
	b := mustCalculate(t, e, agg, date(2026, time.August, 1))

	// THEN: The discount of the window open at application time applies
	assertMoney(t, b.Lines["line-1"].EarlyDiscount, -3000, "early discount")
	assertMoney(t, b.Lines["line-1"].Total, 36500, "total with early discount")

	// WHEN: Applied inside the second window
	agg.AppliedAt = date(2026, time.June, 10)
	b = mustCalculate(t, e, agg, date(2026, time.August, 1))
	assertMoney(t, b.Lines["line-1"].EarlyDiscount, -1500, "second window discount")

	// WHEN: Applied after every window
	agg.AppliedAt = date(2026, time.July, 10)
	b = mustCalculate(t, e, agg, date(2026, time.August, 1))
	assertMoney(t, b.Lines["line-1"].EarlyDiscount, 0, "no early discount")
}

func TestSpec_Line_TravelCostAdded(t *testing.T) {
	agg := singleLineAggregate()
	agg.Lines[0].Stay.TravelCost = 8000

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))

	assertMoney(t, b.Lines["line-1"].TravelCost, 8000, "travel cost")
	assertMoney(t, b.Lines["line-1"].Total, 47500, "total with travel")
}

func TestSpec_Line_PreentryDiscount_PercentOffStayPrice(t *testing.T) {
	// SPEC: "The pre-registration discount is a percentage off the stay
	//        price only, rounded half-up"

	agg := singleLineAggregate()
	agg.Lines[0].PreentryRate = 10

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))

	// 10% of 34500, not of the 39500 line total
	assertMoney(t, b.Lines["line-1"].PreentryDiscount, -3450, "preentry discount")
	assertMoney(t, b.Lines["line-1"].Total, 36050, "total with preentry")
}

// =============================================================================
// 2. AGGREGATE DISCOUNTS
// =============================================================================

func TestSpec_Discounts_AllChannelsCompose(t *testing.T) {
	// GIVEN: Siblings, a payment campaign, two coupons, an introduction
	//        coupon and points, all at once
	agg := singleLineAggregate()
	agg.SiblingCount = 1
	agg.Payment = &pricing.PaymentMethod{Name: "bank-transfer", Discount: 500}
	agg.Coupons = []pricing.Coupon{
		{Code: "SUMMER26", Discount: 2000},
		{Code: "FRIEND", Discount: 1000},
	}
	agg.IntroCoupon = &pricing.Coupon{Code: "INTRO", Discount: 1500}

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))

	assertMoney(t, b.SiblingDiscount, -3000, "sibling discount")
	assertMoney(t, b.PaymentDiscount, -500, "payment discount")
	assertMoney(t, b.CouponDiscount, -3000, "coupon discount")
	assertMoney(t, b.IntroCouponDiscount, -1500, "introduction coupon discount")
	assertMoney(t, b.PointsUsed, -4000, "points used")
	assertMoney(t, b.TotalDiscount, -12000, "total discount")
	assertMoney(t, b.PriceBeforeTax, 27500, "price before tax")
}

func TestSpec_Discounts_DuplicateCouponCodesCountOnce(t *testing.T) {
	agg := singleLineAggregate()
	agg.PointsUsed = 0
	agg.Coupons = []pricing.Coupon{
		{Code: "SUMMER26", Discount: 2000},
		{Code: "SUMMER26", Discount: 2000},
	}

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))

	assertMoney(t, b.CouponDiscount, -2000, "duplicate coupon counted once")
}

func TestSpec_Discounts_WithheldWhileCouponErrorsOutstanding(t *testing.T) {
	// SPEC: "While any coupon validation error is outstanding the whole
	//        coupon discount is withheld"

	agg := singleLineAggregate()
	agg.Coupons = []pricing.Coupon{{Code: "SUMMER26", Discount: 2000}}
	agg.CouponErrors = true
	agg.IntroCoupon = &pricing.Coupon{Code: "INTRO", Discount: 1500}
	agg.IntroCouponErrors = true

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))

	assertMoney(t, b.CouponDiscount, 0, "coupon discount withheld")
	assertMoney(t, b.IntroCouponDiscount, 0, "introduction coupon withheld")
}

// =============================================================================
// 3. TOTALS
// =============================================================================

func TestSpec_Totals_SingleLineScenario(t *testing.T) {
	// GIVEN: One student, 34500 stay + 5000 PC rental, 4000 points

	e := pricing.NewEngine()
	b := mustCalculate(t, e, singleLineAggregate(), date(2026, time.July, 1))

	assertMoney(t, b.TotalPrice, 39500, "total price")
	assertMoney(t, b.TotalDiscount, -4000, "total discount")
	assertMoney(t, b.PriceBeforeTax, 35500, "price before tax")
	assertMoney(t, b.Tax, 3550, "tax")
	assertMoney(t, b.Price, 39050, "final price")
}

func TestSpec_Totals_TaxFlooredToWholeUnits(t *testing.T) {
	// GIVEN: A pre-tax price whose 10% is not a whole number
	agg := singleLineAggregate()
	agg.PointsUsed = 4001 // before-tax 35499, 10% = 3549.9

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))

	assertMoney(t, b.PriceBeforeTax, 35499, "price before tax")
	assertMoney(t, b.Tax, 3549, "tax floored")
}

func TestSpec_Totals_AdjustmentSubtractedAfterTax(t *testing.T) {
	agg := singleLineAggregate()
	agg.AdjustmentPayment = 10000

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))

	assertMoney(t, b.Price, 29050, "price after adjustment")
}

func TestSpec_Totals_PriceNeverNegative(t *testing.T) {
	// SPEC: "The final price may reach zero but never goes negative"

	// Discounts exceed the total
	agg := singleLineAggregate()
	agg.PointsUsed = 50000

	e := pricing.NewEngine()
	b := mustCalculate(t, e, agg, date(2026, time.July, 1))
	assertMoney(t, b.PriceBeforeTax, 0, "before-tax floored at zero")
	assertMoney(t, b.Tax, 0, "no tax on zero")
	assertMoney(t, b.Price, 0, "price floored at zero")

	// The adjustment exceeds the taxed price
	agg = singleLineAggregate()
	agg.AdjustmentPayment = 100000
	b = mustCalculate(t, e, agg, date(2026, time.July, 1))
	assertMoney(t, b.Price, 0, "price floored after adjustment")
}

// =============================================================================
// 4. VALIDATION
// =============================================================================

func TestSpec_Validation_LineWithoutPlanFails(t *testing.T) {
	agg := singleLineAggregate()
	agg.Lines[0].Plan = nil

	_, err := pricing.NewEngine().Calculate(agg, date(2026, time.July, 1), nil)
	if !pricing.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSpec_Validation_DuplicateLineIDsFail(t *testing.T) {
	agg := singleLineAggregate()
	agg.Lines = append(agg.Lines, agg.Lines[0])

	_, err := pricing.NewEngine().Calculate(agg, date(2026, time.July, 1), nil)
	if !pricing.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSpec_Validation_BlankLineIDFails(t *testing.T) {
	agg := singleLineAggregate()
	agg.Lines[0].ID = ""

	_, err := pricing.NewEngine().Calculate(agg, date(2026, time.July, 1), nil)
	if !pricing.IsConfiguration(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

// =============================================================================
// 5. DETERMINISM
// =============================================================================

func TestSpec_Calculate_Deterministic(t *testing.T) {
	// SPEC: "Calculate is a pure function of (snapshot, as-of date,
	//        overrides); repeated invocation yields identical results"

	agg := singleLineAggregate()
	agg.SiblingCount = 1
	agg.Coupons = []pricing.Coupon{{Code: "SUMMER26", Discount: 2000}}

	e := pricing.NewEngine()
	first := mustCalculate(t, e, agg, date(2026, time.July, 1))
	second := mustCalculate(t, e, agg, date(2026, time.July, 1))

	if !reflect.DeepEqual(first, second) {
		t.Errorf("breakdowns differ across identical invocations:\n%+v\n%+v", first, second)
	}
}
