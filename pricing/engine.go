/*
engine.go - Price composition for an enrollment aggregate

PURPOSE:
  Engine.Calculate turns an aggregate snapshot into a PriceBreakdown:

    per-line subtotals -> aggregate discounts -> cancellation fees
    -> total -> tax -> manual adjustment -> breakdown

COMPOSITION ORDER:
  1. Each line: stay price + PC rental fee OR marketplace rentals
     + early-bird discount + travel cost + preentry discount.
  2. Aggregate discounts (all <= 0): sibling, payment method, coupons,
     introduction coupon, points.
  3. Cancelled lines get a fee instead of their subtotal (cancellation.go).
  4. price_before_tax adds the discount unless the whole aggregate is
     cancelled (cancelled aggregates already consumed it inside the fees),
     floored at zero.
  5. Consumption tax, then the operator adjustment; the final price may
     reach zero but never goes negative.

DETERMINISM:
  Calculate is a pure function of (snapshot, as-of date, overrides).
  Repeated invocation with the same history produces identical results,
  so callers may safely retry the read-only computation.
*/
package pricing

import "github.com/shopspring/decimal"

// =============================================================================
// ENGINE
// =============================================================================

// Default policy constants. Fixtures across seasons all used these; they
// are configuration rather than law.
var (
	DefaultSiblingDiscountUnit = Money(3000)
	DefaultTaxRate             = decimal.NewFromFloat(0.10)
)

// Engine computes price breakdowns. Zero-value is not usable; construct
// with NewEngine.
type Engine struct {
	// SiblingDiscountUnit is the fixed discount per sibling beyond the
	// first, and the single unit backed out of an individually cancelled
	// line before its fee is rated.
	SiblingDiscountUnit Money

	// TaxRate is the consumption-tax rate applied to the pre-tax price.
	TaxRate decimal.Decimal
}

func NewEngine() *Engine {
	return &Engine{
		SiblingDiscountUnit: DefaultSiblingDiscountUnit,
		TaxRate:             DefaultTaxRate,
	}
}

// CalculateTax returns the consumption tax for a pre-tax amount, floored
// to whole currency units.
func (e *Engine) CalculateTax(beforeTax Money) Money {
	if beforeTax <= 0 {
		return 0
	}
	return Money(beforeTax.Decimal().Mul(e.TaxRate).Floor().IntPart())
}

// =============================================================================
// CALCULATE
// =============================================================================

// Calculate produces the itemized breakdown for an aggregate as of a
// date. overrides force specific lines' cancellation fees verbatim; pass
// nil for normal resolution.
func (e *Engine) Calculate(agg Aggregate, asOf Date, overrides map[LineID]CancelOverride) (*PriceBreakdown, error) {
	if err := validateAggregate(&agg); err != nil {
		return nil, err
	}

	// Early-bird lookups stay anchored to the original application date
	// so that recomputation after a cancellation never shifts them.
	appliedAt := agg.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = asOf
	}

	siblingDiscount := -Money(agg.SiblingCount) * e.SiblingDiscountUnit

	var paymentDiscount Money
	if agg.Payment != nil {
		paymentDiscount = -agg.Payment.Discount
	}

	var couponDiscount Money
	if !agg.CouponErrors {
		couponDiscount = -SumCouponDiscounts(agg.Coupons)
	}

	var introDiscount Money
	if agg.IntroCoupon != nil && !agg.IntroCouponErrors {
		introDiscount = -agg.IntroCoupon.Discount
	}

	pointsUsed := -agg.PointsUsed

	totalDiscount := siblingDiscount + paymentDiscount + couponDiscount + introDiscount + pointsUsed

	aggCancelled := agg.Cancelled()
	lines := make(map[LineID]LineSubtotal, len(agg.Lines))
	for i := range agg.Lines {
		line := &agg.Lines[i]
		sub := e.lineSubtotal(line, appliedAt)
		fee := e.resolveCancelFee(&agg, line, sub, totalDiscount, aggCancelled, overrides)
		sub.CancelFee = fee.Fee
		sub.CancelRate = fee.Rate
		sub.CancelledAt = fee.CancelledAt
		lines[line.ID] = sub
	}

	var totalPrice Money
	for _, sub := range lines {
		if sub.Status == StatusCancelled {
			totalPrice += sub.CancelFee
		} else {
			totalPrice += sub.Total
		}
	}

	// A fully cancelled aggregate already consumed the discount inside
	// the per-line fees; applying it again would double-count.
	priceBeforeTax := totalPrice
	if !aggCancelled {
		priceBeforeTax += totalDiscount
	}
	if priceBeforeTax < 0 {
		priceBeforeTax = 0
	}

	tax := e.CalculateTax(priceBeforeTax)

	price := priceBeforeTax + tax - agg.AdjustmentPayment
	if price < 0 {
		price = 0
	}

	return &PriceBreakdown{
		Price:               price,
		Tax:                 tax,
		PriceBeforeTax:      priceBeforeTax,
		TotalPrice:          totalPrice,
		TotalDiscount:       totalDiscount,
		SiblingDiscount:     siblingDiscount,
		PaymentDiscount:     paymentDiscount,
		CouponDiscount:      couponDiscount,
		IntroCouponDiscount: introDiscount,
		PointsUsed:          pointsUsed,
		Lines:               lines,
	}, nil
}

// =============================================================================
// LINE SUBTOTAL
// =============================================================================

func (e *Engine) lineSubtotal(line *LineItem, appliedAt Date) LineSubtotal {
	var price, earlyDiscount, travelCost Money
	if line.Stay != nil {
		price = line.Stay.Price
		earlyDiscount = -line.Stay.DiscountFor(appliedAt)
		travelCost = line.Stay.TravelCost
	}

	var pcRentalFee Money
	rentalPrices := RentalPrices{Rentals: []RentalItem{}}
	if line.PCRental {
		pcRentalFee = line.Plan.PCRentalFee
	} else {
		for _, r := range line.Rentals {
			rentalPrices.Rentals = append(rentalPrices.Rentals, r)
			rentalPrices.TotalPrice += r.Price
		}
	}

	var preentryDiscount Money
	if line.PreentryRate > 0 {
		rate := decimal.NewFromInt(int64(line.PreentryRate))
		preentryDiscount = -roundMoney(price.Decimal().Mul(rate).Div(fullRate))
	}

	return LineSubtotal{
		Status:           line.Status,
		Total:            price + pcRentalFee + rentalPrices.TotalPrice + earlyDiscount + travelCost + preentryDiscount,
		Price:            price,
		PCRentalFee:      pcRentalFee,
		RentalPrices:     rentalPrices,
		EarlyDiscount:    earlyDiscount,
		TravelCost:       travelCost,
		PreentryDiscount: preentryDiscount,
		StudentName:      line.StudentName,
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateAggregate(agg *Aggregate) error {
	seen := make(map[LineID]bool, len(agg.Lines))
	for i := range agg.Lines {
		line := &agg.Lines[i]
		if line.ID == "" {
			return &ConfigurationError{AggregateID: agg.ID, Reason: "line item with blank ID"}
		}
		if seen[line.ID] {
			return &ConfigurationError{AggregateID: agg.ID, LineID: line.ID, Reason: "duplicate line item ID"}
		}
		seen[line.ID] = true
		if line.Plan == nil {
			return &ConfigurationError{AggregateID: agg.ID, LineID: line.ID, Reason: "line item has no plan"}
		}
	}
	return nil
}
