/*
coupons.go - Coupon catalog and combination rules

PURPOSE:
  Resolves user-entered coupon codes against the stored catalog and
  enforces the combination rules. The engine itself only sums distinct
  resolved coupons; everything that can go WRONG with a code lives here.

VALIDATION RULES:
  - the code must exist in the catalog
  - a code may be entered only once
  - a camp-scoped coupon only applies to its camp
  - an expired coupon is rejected
  - an exclusive coupon cannot be combined with any other coupon
  - introduction coupons ride a separate slot and only apply to a
    family's first enrollment

  All codes are validated and all problems reported; while any problem
  is outstanding the billing layer withholds the entire coupon discount.
*/
package catalog

import (
	"errors"
	"fmt"

	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// COUPON DEFINITIONS
// =============================================================================

// CouponDef is a stored coupon with its combination rules.
type CouponDef struct {
	Code     string
	Discount pricing.Money

	// Exclusive coupons cannot be combined with any other coupon.
	Exclusive bool

	// CampID scopes the coupon to one camp; empty means any camp.
	CampID string

	ExpiresAt *pricing.Date

	// Introduction coupons only apply to a family's first enrollment.
	Introduction bool
}

func (c *Catalog) AddCoupon(def CouponDef) { c.coupons[def.Code] = def }

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrCoupon     = errors.New("invalid coupon")
	ErrUnknownRef = errors.New("unknown reference")
)

// CouponError reports one problem with one entered code.
type CouponError struct {
	Code   string
	Reason string
}

func (e *CouponError) Error() string { return fmt.Sprintf("coupon %s: %s", e.Code, e.Reason) }
func (e *CouponError) Unwrap() error { return ErrCoupon }

// UnknownRefError reports a lookup against the catalog that found nothing.
type UnknownRefError struct {
	Kind string
	Ref  string
}

func (e *UnknownRefError) Error() string { return fmt.Sprintf("unknown %s %q", e.Kind, e.Ref) }
func (e *UnknownRefError) Unwrap() error { return ErrUnknownRef }

// =============================================================================
// RESOLUTION
// =============================================================================

// CouponRequest is what the family entered on the enrollment form.
type CouponRequest struct {
	CampID          string
	Codes           []string
	IntroCode       string
	FirstEnrollment bool
	AsOf            pricing.Date
}

// CouponResolution is the validated outcome the billing layer stores on
// the aggregate.
type CouponResolution struct {
	// Resolved regular coupons, including valid ones found alongside
	// invalid entries.
	Resolved []pricing.Coupon
	Intro    *pricing.Coupon

	Errors      []error
	IntroErrors []error
}

// HasErrors reports whether any regular-coupon problem is outstanding.
func (r *CouponResolution) HasErrors() bool { return len(r.Errors) > 0 }

// HasIntroErrors reports whether the introduction coupon is unusable.
func (r *CouponResolution) HasIntroErrors() bool { return len(r.IntroErrors) > 0 }

// ResolveCoupons validates every entered code and returns the resolved
// coupons together with every problem found.
func (c *Catalog) ResolveCoupons(req CouponRequest) *CouponResolution {
	res := &CouponResolution{}

	seen := make(map[string]bool, len(req.Codes))
	exclusiveCount := 0
	for _, code := range req.Codes {
		if code == "" {
			continue
		}
		if seen[code] {
			res.Errors = append(res.Errors, &CouponError{Code: code, Reason: "entered more than once"})
			continue
		}
		seen[code] = true

		def, ok := c.coupons[code]
		if !ok {
			res.Errors = append(res.Errors, &CouponError{Code: code, Reason: "does not exist"})
			continue
		}
		if err := c.checkCoupon(def, req); err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		if def.Introduction {
			res.Errors = append(res.Errors, &CouponError{Code: code, Reason: "is an introduction coupon"})
			continue
		}
		if def.Exclusive {
			exclusiveCount++
		}
		res.Resolved = append(res.Resolved, pricing.Coupon{Code: def.Code, Discount: def.Discount})
	}

	// An exclusive coupon tolerates no companions, valid or not.
	if exclusiveCount > 0 && (len(seen) > 1 || exclusiveCount > 1) {
		res.Errors = append(res.Errors, &CouponError{Code: "", Reason: "an exclusive coupon cannot be combined"})
	}

	if req.IntroCode != "" {
		res.Intro, res.IntroErrors = c.resolveIntro(req)
	}

	return res
}

func (c *Catalog) resolveIntro(req CouponRequest) (*pricing.Coupon, []error) {
	def, ok := c.coupons[req.IntroCode]
	if !ok {
		return nil, []error{&CouponError{Code: req.IntroCode, Reason: "does not exist"}}
	}
	if !def.Introduction {
		return nil, []error{&CouponError{Code: req.IntroCode, Reason: "is not an introduction coupon"}}
	}
	if err := c.checkCoupon(def, req); err != nil {
		return nil, []error{err}
	}
	if !req.FirstEnrollment {
		return &pricing.Coupon{Code: def.Code, Discount: def.Discount},
			[]error{&CouponError{Code: def.Code, Reason: "only applies to a first enrollment"}}
	}
	return &pricing.Coupon{Code: def.Code, Discount: def.Discount}, nil
}

func (c *Catalog) checkCoupon(def CouponDef, req CouponRequest) error {
	if def.CampID != "" && def.CampID != req.CampID {
		return &CouponError{Code: def.Code, Reason: "not valid for this camp"}
	}
	if def.ExpiresAt != nil && req.AsOf.After(*def.ExpiresAt) {
		return &CouponError{Code: def.Code, Reason: "expired"}
	}
	return nil
}
