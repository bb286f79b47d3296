/*
Package billing orchestrates the pricing engine against the catalog and
the persistent invoice history.

PURPOSE:
  The engine is pure; this package is the collaborator that owns its
  calling convention:
  - resolve catalog references into an aggregate snapshot (Enroll)
  - load snapshot + history, run the engine, append the breakdown as a
    new immutable invoice (Reprice, CancelLine, CancelAll)
  - stamp payment capture (VerifyInvoice), which is what arms
    cancellation fees

INVOICE NUMBERING:
  Invoices are numbered per aggregate: <aggregate>-inv-<n>, n starting
  at 1. Deterministic, so retried writes hit the store's duplicate
  check instead of minting a second invoice.

SEE ALSO:
  - store.go: the persistence contract
  - store/memory.go: in-memory implementation
*/
package billing

import (
	"context"
	"fmt"
	"log"

	"github.com/warp/camp-billing/catalog"
	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Engine  *pricing.Engine
	Catalog *catalog.Catalog
	Store   Store

	// Logger receives one line per state change; nil disables logging.
	Logger *log.Logger
}

func NewService(cat *catalog.Catalog, store Store) *Service {
	return &Service{
		Engine:  pricing.NewEngine(),
		Catalog: cat,
		Store:   store,
	}
}

func (s *Service) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// =============================================================================
// ENROLLMENT
// =============================================================================

// StudentEnrollment is one student's booking within an enrollment request.
type StudentEnrollment struct {
	Name     string
	PlanID   pricing.PlanID
	StayID   string
	PCRental bool
	Rentals  []pricing.RentalItem

	// Preentered families get the pre-registration discount; returning
	// ones get the higher rate.
	Preentered bool
	Returning  bool
}

// EnrollmentRequest is everything the family submitted.
type EnrollmentRequest struct {
	AggregateID pricing.AggregateID
	CampID      string
	AppliedAt   pricing.Date

	Students []StudentEnrollment

	PaymentMethod   string
	CouponCodes     []string
	IntroCouponCode string
	FirstEnrollment bool
	PointsUsed      pricing.Money
}

// Enroll resolves the request against the catalog, prices it and
// persists the aggregate with its first invoice.
func (s *Service) Enroll(ctx context.Context, req EnrollmentRequest) (*pricing.Invoice, error) {
	agg, err := s.buildAggregate(req)
	if err != nil {
		return nil, err
	}

	breakdown, err := s.Engine.Calculate(*agg, req.AppliedAt, nil)
	if err != nil {
		return nil, err
	}

	invoice := s.newInvoice(agg, breakdown, req.AppliedAt)
	if err := s.Store.CreateAggregate(ctx, agg, invoice); err != nil {
		return nil, err
	}
	s.logf("enrolled aggregate=%s students=%d price=%d", agg.ID, len(agg.Lines), breakdown.Price)
	return invoice, nil
}

func (s *Service) buildAggregate(req EnrollmentRequest) (*pricing.Aggregate, error) {
	if req.AggregateID == "" {
		return nil, &pricing.ConfigurationError{Reason: "enrollment without aggregate ID"}
	}
	if len(req.Students) == 0 {
		return nil, &pricing.ConfigurationError{AggregateID: req.AggregateID, Reason: "enrollment without students"}
	}

	agg := &pricing.Aggregate{
		ID:           req.AggregateID,
		AppliedAt:    req.AppliedAt,
		PointsUsed:   req.PointsUsed,
		SiblingCount: len(req.Students) - 1,
	}

	for i, st := range req.Students {
		plan, err := s.Catalog.ResolvePlan(req.CampID, st.PlanID)
		if err != nil {
			return nil, err
		}
		line := pricing.LineItem{
			ID:          pricing.LineID(fmt.Sprintf("%s-line-%d", req.AggregateID, i+1)),
			StudentName: st.Name,
			Status:      pricing.StatusConfirmed,
			Plan:        plan,
			PCRental:    st.PCRental,
			Rentals:     st.Rentals,
		}
		if st.StayID != "" {
			stay := s.Catalog.Camp(req.CampID).FindPlan(st.PlanID).FindStay(st.StayID)
			if stay == nil {
				return nil, &catalog.UnknownRefError{Kind: "stay", Ref: st.StayID}
			}
			line.Stay = stay
		}
		if st.Preentered {
			line.PreentryRate = s.Catalog.Preentry.RateFor(st.Returning)
		}
		agg.Lines = append(agg.Lines, line)
	}

	if req.PaymentMethod != "" {
		pm := s.Catalog.PaymentMethod(req.PaymentMethod)
		if pm == nil {
			return nil, &catalog.UnknownRefError{Kind: "payment method", Ref: req.PaymentMethod}
		}
		agg.Payment = pm
	}

	res := s.Catalog.ResolveCoupons(catalog.CouponRequest{
		CampID:          req.CampID,
		Codes:           req.CouponCodes,
		IntroCode:       req.IntroCouponCode,
		FirstEnrollment: req.FirstEnrollment,
		AsOf:            req.AppliedAt,
	})
	agg.Coupons = res.Resolved
	agg.CouponErrors = res.HasErrors()
	agg.IntroCoupon = res.Intro
	agg.IntroCouponErrors = res.HasIntroErrors()

	return agg, nil
}

// =============================================================================
// QUOTING AND REPRICING
// =============================================================================

// Quote recomputes the breakdown without persisting anything.
func (s *Service) Quote(ctx context.Context, id pricing.AggregateID, asOf pricing.Date) (*pricing.PriceBreakdown, error) {
	agg, err := s.Store.GetAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Engine.Calculate(*agg, asOf, nil)
}

// Reprice recomputes the breakdown and appends it as a new invoice.
// Settled cancellation fees carry forward, so repricing is safe at any
// point in the aggregate's life.
func (s *Service) Reprice(ctx context.Context, id pricing.AggregateID, asOf pricing.Date) (*pricing.Invoice, error) {
	agg, err := s.Store.GetAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.Engine.Calculate(*agg, asOf, nil)
	if err != nil {
		return nil, err
	}
	return s.appendInvoice(ctx, agg, breakdown, asOf)
}

// =============================================================================
// CANCELLATION
// =============================================================================

// CancelLine cancels one student's booking as of a date and appends the
// resulting invoice. The line-status change and the invoice commit
// together.
func (s *Service) CancelLine(ctx context.Context, id pricing.AggregateID, lineID pricing.LineID, asOf pricing.Date) (*pricing.Invoice, error) {
	agg, err := s.Store.GetAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.Engine.CancelOne(agg, lineID, asOf)
	if err != nil {
		return nil, err
	}
	inv, err := s.appendInvoice(ctx, agg, breakdown, asOf)
	if err != nil {
		return nil, err
	}
	s.logf("cancelled aggregate=%s line=%s fee=%d", id, lineID, breakdown.Lines[lineID].CancelFee)
	return inv, nil
}

// CancelAll cancels every remaining booking as of a date and appends the
// resulting invoice.
func (s *Service) CancelAll(ctx context.Context, id pricing.AggregateID, asOf pricing.Date) (*pricing.Invoice, error) {
	agg, err := s.Store.GetAggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	breakdown, err := s.Engine.CancelAll(agg, asOf)
	if err != nil {
		return nil, err
	}
	inv, err := s.appendInvoice(ctx, agg, breakdown, asOf)
	if err != nil {
		return nil, err
	}
	s.logf("cancelled aggregate=%s (all lines) price=%d", id, breakdown.Price)
	return inv, nil
}

// =============================================================================
// PAYMENT VERIFICATION
// =============================================================================

// VerifyInvoice stamps the payment-capture date on an invoice. Once any
// invoice is verified, cancellations start accruing fees.
func (s *Service) VerifyInvoice(ctx context.Context, id pricing.AggregateID, invoiceID string, at pricing.Date) error {
	if err := s.Store.MarkVerified(ctx, id, invoiceID, at); err != nil {
		return err
	}
	s.logf("verified aggregate=%s invoice=%s", id, invoiceID)
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (s *Service) newInvoice(agg *pricing.Aggregate, b *pricing.PriceBreakdown, createdAt pricing.Date) *pricing.Invoice {
	return &pricing.Invoice{
		ID:        fmt.Sprintf("%s-inv-%d", agg.ID, len(agg.History)+1),
		CreatedAt: createdAt,
		Breakdown: *b,
	}
}

func (s *Service) appendInvoice(ctx context.Context, agg *pricing.Aggregate, b *pricing.PriceBreakdown, asOf pricing.Date) (*pricing.Invoice, error) {
	invoice := s.newInvoice(agg, b, asOf)
	if err := s.Store.SaveAggregate(ctx, agg, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}
