/*
Package pricing provides the camp billing core engine.

PURPOSE:
  This package contains the two rule engines the rest of the system is
  built around:
  - CancelRateResolver: graduated cancellation-fee percentage as a
    function of time-to-event (ResolveRate in cancelrate.go)
  - PriceEngine: itemized price breakdown for an enrollment aggregate,
    composing discounts, taxes, rentals and cancellation fees
    (Engine.Calculate in engine.go)

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: integer currency units (yen); never floats
  - Aggregate: snapshot of one payer's enrollment (the billable unit)
  - LineItem: one enrolled student's booking within an aggregate
  - Invoice: an immutable priced snapshot appended after every change

DESIGN PRINCIPLES:
  1. Purity: Calculate is a function of (snapshot, as-of date, overrides).
     No clock reads, no I/O, no shared state.
  2. Immutability: invoices are append-only; a cancellation fee is
     assigned exactly once and carried forward verbatim thereafter.
  3. Precision: rates are decimal.Decimal, fees are rounded half-up once.
  4. Degradation over errors: missing dates, empty rate tables and zero
     coupons resolve to neutral zeros; only a malformed aggregate fails.

USAGE:
  engine := pricing.NewEngine()
  breakdown, err := engine.Calculate(aggregate, asOf, nil)

SEE ALSO:
  - cancelrate.go: rate resolution rules
  - engine.go: price composition
  - cancellation.go: idempotent cancellation-fee procedure
*/
package pricing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Integer currency units
// =============================================================================

// Money is an amount in whole currency units (yen). Discounts are
// negative, charges positive.
type Money int64

func (m Money) Decimal() decimal.Decimal { return decimal.NewFromInt(int64(m)) }

// roundMoney rounds a decimal amount half-up (half away from zero) to
// whole currency units.
func roundMoney(d decimal.Decimal) Money {
	return Money(d.Round(0).IntPart())
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AggregateID string
type LineID string
type PlanID string

// =============================================================================
// LINE STATUS
// =============================================================================

type LineStatus string

const (
	StatusConfirmed LineStatus = "confirmed"
	StatusPending   LineStatus = "pending"
	StatusCancelled LineStatus = "cancelled"
)

// =============================================================================
// PLAN CONFIGURATION - Resolved inputs for one bookable session
// =============================================================================

// PlanConfig is the pricing-relevant view of one bookable camp session.
// The catalog layer resolves persisted camps/plans into this shape; the
// core never loads anything itself.
type PlanConfig struct {
	ID        PlanID
	Name      string
	StartDate Date
	EndDate   Date

	// Gate dates, consulted in strict priority by ResolveRate.
	// Plan-level dates win over the owning grouping's.
	CancelFeeStartDate *Date
	ApplyDeadline      *Date
	Grouping           *GroupingConfig

	// Graduated schedule keyed by days before StartDate.
	RateTable RateTable

	// Flat fee when the family opts for a self-managed rental PC.
	PCRentalFee Money
}

// GroupingConfig carries the camp-level fallback gate dates.
type GroupingConfig struct {
	CancelFeeStartDate *Date
	ApplyDeadline      *Date
}

// =============================================================================
// STAY PLAN - Accommodation choice attached to a line
// =============================================================================

// StayPlan is the priced accommodation option for a line: base price,
// travel cost and an early-bird discount schedule keyed by booking date.
type StayPlan struct {
	ID         string
	Name       string
	Price      Money
	TravelCost Money

	// EarlyDiscounts sorted ascending by Until. The discount of the
	// earliest entry whose Until is on or after the application date
	// applies; past the last entry there is no early discount.
	EarlyDiscounts []EarlyDiscount
}

type EarlyDiscount struct {
	Until  Date
	Amount Money
}

// DiscountFor returns the early-bird discount for an application date.
func (s *StayPlan) DiscountFor(appliedAt Date) Money {
	for _, ed := range s.EarlyDiscounts {
		if appliedAt.BeforeOrEqual(ed.Until) {
			return ed.Amount
		}
	}
	return 0
}

// =============================================================================
// RENTALS - Marketplace items rented for the camp term
// =============================================================================

type RentalItem struct {
	Name  string `json:"name"`
	Price Money  `json:"price"`
}

type RentalPrices struct {
	TotalPrice Money        `json:"total_price"`
	Rentals    []RentalItem `json:"rentals"`
}

// =============================================================================
// PAYMENT METHOD & COUPONS
// =============================================================================

// PaymentMethod bears a fixed discount (bank transfer campaigns etc.).
type PaymentMethod struct {
	Name     string `json:"name"`
	Discount Money  `json:"discount"`
}

// Coupon is a code already resolved against the persisted catalog.
// Validation (duplicates, exclusivity, ownership) happens in the catalog
// layer; the engine only sums distinct codes.
type Coupon struct {
	Code     string `json:"code"`
	Discount Money  `json:"discount"`
}

// SumCouponDiscounts totals coupon discounts, counting each code once.
func SumCouponDiscounts(coupons []Coupon) Money {
	var total Money
	applied := make(map[string]bool, len(coupons))
	for _, c := range coupons {
		if c.Code == "" || applied[c.Code] {
			continue
		}
		total += c.Discount
		applied[c.Code] = true
	}
	return total
}

// =============================================================================
// LINE ITEM - One enrolled student's booking
// =============================================================================

type LineItem struct {
	ID          LineID
	StudentName string
	Status      LineStatus
	CancelledAt *Date

	Plan *PlanConfig
	Stay *StayPlan

	// PCRental selects the plan's flat PC rental fee instead of
	// marketplace rentals; the two are mutually exclusive.
	PCRental bool
	Rentals  []RentalItem

	// PreentryRate is the pre-registration discount percentage off the
	// stay price (0 when the family did not preenter).
	PreentryRate int
}

func (l *LineItem) Cancelled() bool { return l.Status == StatusCancelled }

// =============================================================================
// AGGREGATE - Snapshot of one payer's enrollment (the billable unit)
// =============================================================================

// Aggregate is a read-only snapshot handed to Calculate. The owning
// collaborator loads it consistently, persists the returned breakdown
// atomically with any line-status change, and constructs a fresh snapshot
// for every call.
type Aggregate struct {
	ID AggregateID

	// AppliedAt anchors the early-bird discount lookup so that
	// recomputation after a cancellation never shifts it.
	AppliedAt Date

	Lines []LineItem

	Payment *PaymentMethod

	Coupons []Coupon
	// CouponErrors is precomputed by the catalog's validation; while any
	// error is outstanding the whole coupon discount is withheld.
	CouponErrors bool

	IntroCoupon       *Coupon
	IntroCouponErrors bool

	// PointsUsed is the number of points redeemed (1 point = 1 unit).
	PointsUsed Money

	// SiblingCount is the number of enrolled siblings beyond the first.
	SiblingCount int

	// AdjustmentPayment is a manual operator override subtracted from
	// the final price.
	AdjustmentPayment Money

	// History holds every prior invoice, oldest first. Append-only;
	// the only channel carrying settled cancellation fees forward.
	History []Invoice
}

// Cancelled reports whether the whole aggregate is cancelled, i.e. every
// line is.
func (a *Aggregate) Cancelled() bool {
	if len(a.Lines) == 0 {
		return false
	}
	for i := range a.Lines {
		if !a.Lines[i].Cancelled() {
			return false
		}
	}
	return true
}

// LastInvoice returns the most recent prior invoice, or nil.
func (a *Aggregate) LastInvoice() *Invoice {
	if len(a.History) == 0 {
		return nil
	}
	return &a.History[len(a.History)-1]
}

// HasVerifiedInvoice reports whether any invoice was ever payment-verified.
// Only paid enrollments accrue cancellation fees.
func (a *Aggregate) HasVerifiedInvoice() bool {
	for i := range a.History {
		if a.History[i].VerifiedAt != nil {
			return true
		}
	}
	return false
}

// =============================================================================
// INVOICE - Immutable priced snapshot
// =============================================================================

type Invoice struct {
	ID        string         `json:"id"`
	CreatedAt Date           `json:"created_at"`
	// VerifiedAt is set when the payment gateway confirms capture.
	VerifiedAt *Date          `json:"verified_at,omitempty"`
	Breakdown  PriceBreakdown `json:"breakdown"`
}
