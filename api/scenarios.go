/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates a camp, enrolls one
	or more families and optionally verifies and cancels, so the invoice
	history shows the billing rules in action.

AVAILABLE SCENARIOS:

	family-enrollment: Two siblings, PC rental, coupon, points
	early-bird:        Enrollment inside the early-discount window, preentry
	cancellation-fees: Verified invoice, then one line cancelled late
	full-cancellation: Whole family cancelled the day before camp

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register the demo camp via the factory
 3. Seed payment methods and coupons
 4. Enroll families through the billing service
 5. Optionally verify payment and cancel

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "cancellation-fees"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - factory/camp.go: Camp JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/warp/camp-billing/billing"
	"github.com/warp/camp-billing/catalog"
	"github.com/warp/camp-billing/factory"
	"github.com/warp/camp-billing/pricing"
	"github.com/warp/camp-billing/store/sqlite"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "family-enrollment",
		Name:        "Family Enrollment",
		Description: "Two siblings with PC rental, a coupon and points",
		Category:    "enrollment",
	},
	{
		ID:          "early-bird",
		Name:        "Early Bird",
		Description: "Enrollment inside the early-discount window with preentry",
		Category:    "enrollment",
	},
	{
		ID:          "cancellation-fees",
		Name:        "Cancellation Fees",
		Description: "Verified payment, then one sibling cancelled the day before camp",
		Category:    "cancellation",
	},
	{
		ID:          "full-cancellation",
		Name:        "Full Cancellation",
		Description: "Whole family cancelled late, aggregate discount apportioned into fees",
		Category:    "cancellation",
	},
}

const demoCampJSON = `{
	"id": "summer-2026",
	"name": "Summer Tech Camp 2026",
	"season": "2026-summer",
	"apply_deadline": "2026-07-26",
	"plans": [
		{
			"id": "plan-a",
			"name": "Session A",
			"start_date": "2026-08-10",
			"end_date": "2026-08-14",
			"pc_rental_fee": 5000,
			"capacity": 40,
			"cancel_rates": [
				{"days_before": 1, "rate": 80},
				{"days_before": 2, "rate": 50},
				{"days_before": 15, "rate": 30},
				{"days_before": 30, "rate": 20}
			],
			"stays": [
				{
					"id": "stay-std",
					"name": "Standard Room",
					"price": 34500,
					"early_discounts": [
						{"until": "2026-05-31", "amount": 3000},
						{"until": "2026-06-30", "amount": 1500}
					]
				},
				{
					"id": "stay-premium",
					"name": "Premium Room",
					"price": 49500,
					"travel_cost": 8000,
					"early_discounts": [
						{"until": "2026-05-31", "amount": 3000}
					]
				}
			]
		}
	]
}`

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.resetAll(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "family-enrollment":
		err = h.loadFamilyEnrollmentScenario(ctx)
	case "early-bird":
		err = h.loadEarlyBirdScenario(ctx)
	case "cancellation-fees":
		err = h.loadCancellationFeesScenario(ctx)
	case "full-cancellation":
		err = h.loadFullCancellationScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario: "+req.ScenarioID, nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) resetAll(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.Catalog = catalog.New()
	h.Service = billing.NewService(h.Catalog, h.Store)
	h.currentScenario = ""
	return nil
}

// seedDemoCamp registers the demo camp with its payment methods and coupons.
func (h *Handler) seedDemoCamp(ctx context.Context) error {
	camp, err := factory.ParseCamp(demoCampJSON)
	if err != nil {
		return err
	}
	if err := h.Store.SaveCamp(ctx, sqlite.CampRecord{
		ID:         camp.ID,
		Season:     camp.Season,
		ConfigJSON: demoCampJSON,
	}); err != nil {
		return err
	}
	h.Catalog.AddCamp(camp)

	h.Catalog.AddPaymentMethod(pricing.PaymentMethod{Name: "bank-transfer", Discount: 500})
	h.Catalog.AddPaymentMethod(pricing.PaymentMethod{Name: "credit-card", Discount: 0})

	h.Catalog.AddCoupon(catalog.CouponDef{Code: "SUMMER26", Discount: 2000})
	h.Catalog.AddCoupon(catalog.CouponDef{Code: "FRIEND", Discount: 1000})
	h.Catalog.AddCoupon(catalog.CouponDef{Code: "INTRO26", Discount: 1500, Introduction: true})
	return nil
}

func (h *Handler) loadFamilyEnrollmentScenario(ctx context.Context) error {
	if err := h.seedDemoCamp(ctx); err != nil {
		return err
	}

	_, err := h.Service.Enroll(ctx, billing.EnrollmentRequest{
		AggregateID: "tanaka",
		CampID:      "summer-2026",
		AppliedAt:   pricing.NewDate(2026, time.June, 15),
		Students: []billing.StudentEnrollment{
			{Name: "Hanako", PlanID: "plan-a", StayID: "stay-std", PCRental: true},
			{Name: "Taro", PlanID: "plan-a", StayID: "stay-std", Rentals: []pricing.RentalItem{
				{Name: "Sleeping bag", Price: 1200},
			}},
		},
		PaymentMethod: "bank-transfer",
		CouponCodes:   []string{"SUMMER26"},
		PointsUsed:    4000,
	})
	return err
}

func (h *Handler) loadEarlyBirdScenario(ctx context.Context) error {
	if err := h.seedDemoCamp(ctx); err != nil {
		return err
	}

	_, err := h.Service.Enroll(ctx, billing.EnrollmentRequest{
		AggregateID: "suzuki",
		CampID:      "summer-2026",
		AppliedAt:   pricing.NewDate(2026, time.May, 20),
		Students: []billing.StudentEnrollment{
			{Name: "Yuki", PlanID: "plan-a", StayID: "stay-premium", Preentered: true, Returning: true},
		},
		PaymentMethod:   "credit-card",
		IntroCouponCode: "INTRO26",
		FirstEnrollment: true,
	})
	return err
}

func (h *Handler) loadCancellationFeesScenario(ctx context.Context) error {
	if err := h.seedDemoCamp(ctx); err != nil {
		return err
	}

	first, err := h.Service.Enroll(ctx, billing.EnrollmentRequest{
		AggregateID: "yamada",
		CampID:      "summer-2026",
		AppliedAt:   pricing.NewDate(2026, time.June, 15),
		Students: []billing.StudentEnrollment{
			{Name: "Kenta", PlanID: "plan-a", StayID: "stay-std", PCRental: true},
			{Name: "Mio", PlanID: "plan-a", StayID: "stay-std"},
		},
	})
	if err != nil {
		return err
	}
	if err := h.Service.VerifyInvoice(ctx, "yamada", first.ID, pricing.NewDate(2026, time.June, 16)); err != nil {
		return err
	}

	// One sibling drops out the day before camp: 80% bucket
	_, err = h.Service.CancelLine(ctx, "yamada", "yamada-line-2", pricing.NewDate(2026, time.August, 9))
	return err
}

func (h *Handler) loadFullCancellationScenario(ctx context.Context) error {
	if err := h.seedDemoCamp(ctx); err != nil {
		return err
	}

	first, err := h.Service.Enroll(ctx, billing.EnrollmentRequest{
		AggregateID: "sato",
		CampID:      "summer-2026",
		AppliedAt:   pricing.NewDate(2026, time.June, 15),
		Students: []billing.StudentEnrollment{
			{Name: "Ren", PlanID: "plan-a", StayID: "stay-std", PCRental: true},
		},
		CouponCodes: []string{"SUMMER26", "FRIEND"},
		PointsUsed:  4000,
	})
	if err != nil {
		return err
	}
	if err := h.Service.VerifyInvoice(ctx, "sato", first.ID, pricing.NewDate(2026, time.June, 16)); err != nil {
		return err
	}

	_, err = h.Service.CancelAll(ctx, "sato", pricing.NewDate(2026, time.August, 9))
	return err
}
