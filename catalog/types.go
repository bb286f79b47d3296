/*
Package catalog holds the persisted camp offering: camps, plans, stay
options, payment methods and the coupon catalog.

PURPOSE:
  The pricing engine consumes fully resolved snapshots; it never loads
  anything. This package is the resolution step in between: it turns the
  stored offering into pricing.PlanConfig values and validated coupon
  lists, and owns the business rules that are about the OFFERING rather
  than about money (which plan belongs to which camp, which coupon
  combinations are allowed).

KEY CONCEPTS:
  - Camp: a season's camp, the grouping level for fallback gate dates
  - Plan: one bookable session within a camp
  - CouponDef: a stored coupon with its combination rules
  - PreentryRates: pre-registration discount percentages

SEE ALSO:
  - coupons.go: coupon resolution and validation
  - factory/: JSON definitions -> these types
*/
package catalog

import (
	"sort"

	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// CAMP - Grouping level
// =============================================================================

// Camp is one season's camp. Its gate dates are the fallback for plans
// that configure none of their own.
type Camp struct {
	ID     string
	Name   string
	Season string

	CancelFeeStartDate *pricing.Date
	ApplyDeadline      *pricing.Date

	Plans []Plan
}

// Grouping returns the camp-level fallback gates in engine shape.
func (c *Camp) Grouping() *pricing.GroupingConfig {
	return &pricing.GroupingConfig{
		CancelFeeStartDate: c.CancelFeeStartDate,
		ApplyDeadline:      c.ApplyDeadline,
	}
}

// FindPlan returns the plan with the given ID, or nil.
func (c *Camp) FindPlan(id pricing.PlanID) *Plan {
	for i := range c.Plans {
		if c.Plans[i].ID == id {
			return &c.Plans[i]
		}
	}
	return nil
}

// =============================================================================
// PLAN - One bookable session
// =============================================================================

type Plan struct {
	ID   pricing.PlanID
	Name string

	StartDate pricing.Date
	EndDate   pricing.Date

	CancelFeeStartDate *pricing.Date
	ApplyDeadline      *pricing.Date

	// RateTable in any order; Config sorts it.
	RateTable pricing.RateTable

	PCRentalFee pricing.Money

	Stays    []pricing.StayPlan
	Capacity int
}

// FindStay returns the stay option with the given ID, or nil.
func (p *Plan) FindStay(id string) *pricing.StayPlan {
	for i := range p.Stays {
		if p.Stays[i].ID == id {
			return &p.Stays[i]
		}
	}
	return nil
}

// Config resolves the plan into the engine's input shape, with the
// owning camp supplying the fallback gates and the rate table sorted
// ascending by days-before as the lookup requires.
func (p *Plan) Config(camp *Camp) pricing.PlanConfig {
	table := make(pricing.RateTable, len(p.RateTable))
	copy(table, p.RateTable)
	sort.Slice(table, func(i, j int) bool { return table[i].DaysBefore < table[j].DaysBefore })

	return pricing.PlanConfig{
		ID:                 p.ID,
		Name:               p.Name,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		CancelFeeStartDate: p.CancelFeeStartDate,
		ApplyDeadline:      p.ApplyDeadline,
		Grouping:           camp.Grouping(),
		RateTable:          table,
		PCRentalFee:        p.PCRentalFee,
	}
}

// =============================================================================
// PREENTRY RATES - Pre-registration discount percentages
// =============================================================================

// PreentryRates are the percentages off the stay price for families who
// pre-registered before the season opened.
type PreentryRates struct {
	Standard  int
	Returning int
}

var DefaultPreentryRates = PreentryRates{Standard: 5, Returning: 10}

// RateFor returns the applicable percentage; returning families get the
// higher rate.
func (r PreentryRates) RateFor(returning bool) int {
	if returning {
		return r.Returning
	}
	return r.Standard
}

// =============================================================================
// CATALOG - The whole stored offering
// =============================================================================

type Catalog struct {
	camps    map[string]*Camp
	payments map[string]pricing.PaymentMethod
	coupons  map[string]CouponDef

	Preentry PreentryRates
}

func New() *Catalog {
	return &Catalog{
		camps:    make(map[string]*Camp),
		payments: make(map[string]pricing.PaymentMethod),
		coupons:  make(map[string]CouponDef),
		Preentry: DefaultPreentryRates,
	}
}

func (c *Catalog) AddCamp(camp *Camp) { c.camps[camp.ID] = camp }

// Camp returns the camp with the given ID, or nil.
func (c *Catalog) Camp(id string) *Camp { return c.camps[id] }

// Camps returns all camps sorted by ID for stable listings.
func (c *Catalog) Camps() []*Camp {
	out := make([]*Camp, 0, len(c.camps))
	for _, camp := range c.camps {
		out = append(out, camp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ResolvePlan finds a plan across camps and returns it in engine shape.
func (c *Catalog) ResolvePlan(campID string, planID pricing.PlanID) (*pricing.PlanConfig, error) {
	camp := c.Camp(campID)
	if camp == nil {
		return nil, &UnknownRefError{Kind: "camp", Ref: campID}
	}
	plan := camp.FindPlan(planID)
	if plan == nil {
		return nil, &UnknownRefError{Kind: "plan", Ref: string(planID)}
	}
	cfg := plan.Config(camp)
	return &cfg, nil
}

func (c *Catalog) AddPaymentMethod(pm pricing.PaymentMethod) { c.payments[pm.Name] = pm }

// PaymentMethod returns the payment method by name, or nil when unknown.
func (c *Catalog) PaymentMethod(name string) *pricing.PaymentMethod {
	if pm, ok := c.payments[name]; ok {
		return &pm
	}
	return nil
}
