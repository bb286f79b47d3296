package pricing

// =============================================================================
// PRICE BREAKDOWN - The priced snapshot emitted by Calculate
// =============================================================================

// LineSubtotal is the itemized price of one line, plus its cancellation
// fields. Prior invoices carry these verbatim; the cancellation procedure
// reads them back as typed data instead of re-parsing a serialized blob.
type LineSubtotal struct {
	Status           LineStatus   `json:"status"`
	Total            Money        `json:"total"`
	Price            Money        `json:"price"`
	PCRentalFee      Money        `json:"pc_rental_fee"`
	RentalPrices     RentalPrices `json:"rental_prices"`
	EarlyDiscount    Money        `json:"early_discount"`
	TravelCost       Money        `json:"travel_cost"`
	PreentryDiscount Money        `json:"preentry_discount"`
	StudentName      string       `json:"student_name"`

	CancelFee   Money `json:"cancel_fee"`
	CancelRate  int64 `json:"cancel_rate"`
	CancelledAt *Date `json:"cancelled_at,omitempty"`
}

// PriceBreakdown is the complete priced view of an aggregate at a point
// in time. Appended to the invoice history by the owning collaborator;
// immutable once created.
type PriceBreakdown struct {
	Price          Money `json:"price"`
	Tax            Money `json:"tax"`
	PriceBeforeTax Money `json:"price_before_tax"`
	TotalPrice     Money `json:"total_price"`

	TotalDiscount       Money `json:"total_discount"`
	SiblingDiscount     Money `json:"sibling_discount"`
	PaymentDiscount     Money `json:"payment_discount"`
	CouponDiscount      Money `json:"coupon_discount"`
	IntroCouponDiscount Money `json:"introduction_coupon_discount"`
	PointsUsed          Money `json:"points_used"`

	Lines map[LineID]LineSubtotal `json:"lines"`
}

// UncancelledCount returns how many lines this breakdown recorded as not
// yet cancelled. Drives the multi-line vs last-line apportionment branch.
func (b *PriceBreakdown) UncancelledCount() int {
	n := 0
	for _, sub := range b.Lines {
		if sub.Status != StatusCancelled {
			n++
		}
	}
	return n
}

// =============================================================================
// CANCEL OVERRIDE - Operator-forced cancellation fee
// =============================================================================

// CancelOverride forces a line's cancellation fee verbatim, bypassing the
// resolution procedure. Used by operators for goodwill adjustments.
type CancelOverride struct {
	Fee         Money
	Rate        int64
	CancelledAt *Date
}
