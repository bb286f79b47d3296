/*
cancellation.go - Idempotent cancellation-fee resolution

PURPOSE:
  Assigns each cancelled line its fee exactly once, then carries it
  forward verbatim on every later recomputation. The fee replaces the
  line's subtotal in the aggregate total.

RESOLUTION ORDER (per cancelled line):
  1. Operator override, verbatim.
  2. Zero unless the line is cancelled with a recorded date, a prior
     invoice exists, and some invoice was ever payment-verified.
  3. Carry-forward: if the last invoice already recorded this line as
     cancelled, its fee, rate and date are reused unchanged.
  4. Fresh fee, rated at the line's own cancellation date:
     - whole aggregate cancelled, last invoice had several live lines:
       the aggregate discount is split evenly across the last invoice's
       lines before rating
     - whole aggregate cancelled, this was the sole or last live line:
       the full remaining discount lands on it
     - individual cancellation: one sibling-discount unit is backed out
       of the line, regardless of the aggregate's discount composition

ARITHMETIC:
  Apportionment runs in decimals end to end; the result is rounded
  half-up to whole currency units exactly once.
*/
package pricing

import "github.com/shopspring/decimal"

// =============================================================================
// FEE RESOLUTION
// =============================================================================

// resolveCancelFee returns the settled cancellation fields for one line.
// Non-cancelled lines resolve to zeros.
func (e *Engine) resolveCancelFee(agg *Aggregate, line *LineItem, sub LineSubtotal, totalDiscount Money, aggCancelled bool, overrides map[LineID]CancelOverride) CancelOverride {
	if ov, ok := overrides[line.ID]; ok {
		return ov
	}
	if !line.Cancelled() || line.CancelledAt == nil {
		return CancelOverride{}
	}

	settled := CancelOverride{CancelledAt: line.CancelledAt}

	last := agg.LastInvoice()
	if last == nil {
		return settled
	}

	// A fee is assigned once. If the last invoice already priced this
	// line as cancelled, its fields are final.
	if prev, ok := last.Breakdown.Lines[line.ID]; ok && prev.Status == StatusCancelled {
		return CancelOverride{Fee: prev.CancelFee, Rate: prev.CancelRate, CancelledAt: prev.CancelledAt}
	}

	// Only paid enrollments accrue fees.
	if !agg.HasVerifiedInvoice() {
		return settled
	}

	rate := ResolveRate(*line.Plan, *line.CancelledAt)
	if rate.IsZero() {
		return settled
	}
	settled.Rate = rate.Round(0).IntPart()

	base := sub.Total.Decimal()
	switch {
	case aggCancelled && last.Breakdown.UncancelledCount() > 1:
		// Split the aggregate discount evenly across the lines the last
		// invoice priced.
		share := totalDiscount.Decimal().Div(decimal.NewFromInt(int64(len(last.Breakdown.Lines))))
		base = base.Add(share)
	case aggCancelled:
		base = base.Add(totalDiscount.Decimal())
	default:
		base = base.Sub(e.SiblingDiscountUnit.Decimal())
	}

	settled.Fee = roundMoney(base.Mul(rate).Div(fullRate))
	return settled
}

// =============================================================================
// CANCELLATION OPERATIONS
// =============================================================================

// CancelOne marks a single line cancelled as of a date and returns the
// recomputed breakdown. Cancelling an already-cancelled line is a no-op
// on the line; the breakdown still reflects its settled fee.
func (e *Engine) CancelOne(agg *Aggregate, lineID LineID, asOf Date) (*PriceBreakdown, error) {
	line := findLine(agg, lineID)
	if line == nil {
		return nil, ErrLineNotFound
	}
	markCancelled(line, asOf)
	return e.Calculate(*agg, asOf, nil)
}

// CancelAll marks every remaining line cancelled as of a date and returns
// the recomputed breakdown. Lines cancelled earlier keep their original
// dates and fees.
func (e *Engine) CancelAll(agg *Aggregate, asOf Date) (*PriceBreakdown, error) {
	for i := range agg.Lines {
		markCancelled(&agg.Lines[i], asOf)
	}
	return e.Calculate(*agg, asOf, nil)
}

func findLine(agg *Aggregate, id LineID) *LineItem {
	for i := range agg.Lines {
		if agg.Lines[i].ID == id {
			return &agg.Lines[i]
		}
	}
	return nil
}

func markCancelled(line *LineItem, asOf Date) {
	if line.Cancelled() {
		return
	}
	line.Status = StatusCancelled
	d := asOf
	line.CancelledAt = &d
}
