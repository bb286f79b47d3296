/*
Package factory provides JSON to Go camp-definition conversion.

PURPOSE:
  Converts JSON camp definitions into catalog types. This enables camp
  configuration without code changes - operations staff can define a
  season's camps in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify camp offerings
  - Easy integration with the admin UI
  - Version control for season definitions
  - Database storage of camp configs (store/sqlite camps table)

JSON SCHEMA:
  {
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
        "cancel_rates": [
          {"days_before": 1, "rate": 80},
          {"days_before": 2, "rate": 50}
        ],
        "stays": [
          {
            "id": "stay-std",
            "name": "Standard Room",
            "price": 34500,
            "early_discounts": [
              {"until": "2026-05-31", "amount": 3000}
            ]
          }
        ]
      }
    ]
  }

KEY FEATURES:
  - Validates required fields and date formats
  - Dates as "YYYY-MM-DD"; absent gates stay nil
  - Rates accepted in any order; the catalog sorts on resolution

USAGE:
  camp, err := factory.ParseCamp(jsonStr)
  cat.AddCamp(camp)

SEE ALSO:
  - catalog/types.go: Target type definitions
  - api/scenarios.go: Demo definitions built with this factory
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/camp-billing/catalog"
	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CampJSON is the JSON representation of a camp and its plans.
type CampJSON struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Season string `json:"season,omitempty"`

	CancelFeeStartDate string `json:"cancel_fee_start_date,omitempty"`
	ApplyDeadline      string `json:"apply_deadline,omitempty"`

	Plans []PlanJSON `json:"plans"`
}

type PlanJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`

	CancelFeeStartDate string `json:"cancel_fee_start_date,omitempty"`
	ApplyDeadline      string `json:"apply_deadline,omitempty"`

	CancelRates []CancelRateJSON `json:"cancel_rates,omitempty"`
	PCRentalFee int64            `json:"pc_rental_fee,omitempty"`
	Capacity    int              `json:"capacity,omitempty"`

	Stays []StayJSON `json:"stays,omitempty"`
}

type CancelRateJSON struct {
	DaysBefore int     `json:"days_before"`
	Rate       float64 `json:"rate"`
}

type StayJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Price      int64  `json:"price"`
	TravelCost int64  `json:"travel_cost,omitempty"`

	EarlyDiscounts []EarlyDiscountJSON `json:"early_discounts,omitempty"`
}

type EarlyDiscountJSON struct {
	Until  string `json:"until"`
	Amount int64  `json:"amount"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseCamp parses a JSON string into a catalog.Camp.
func ParseCamp(jsonStr string) (*catalog.Camp, error) {
	var cj CampJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, fmt.Errorf("failed to parse camp JSON: %w", err)
	}
	return FromJSON(cj)
}

// FromJSON converts CampJSON to a catalog.Camp.
func FromJSON(cj CampJSON) (*catalog.Camp, error) {
	if cj.ID == "" {
		return nil, fmt.Errorf("camp definition requires an id")
	}

	camp := &catalog.Camp{
		ID:     cj.ID,
		Name:   cj.Name,
		Season: cj.Season,
	}

	var err error
	if camp.CancelFeeStartDate, err = parseOptionalDate(cj.CancelFeeStartDate, "cancel_fee_start_date"); err != nil {
		return nil, fmt.Errorf("camp %s: %w", cj.ID, err)
	}
	if camp.ApplyDeadline, err = parseOptionalDate(cj.ApplyDeadline, "apply_deadline"); err != nil {
		return nil, fmt.Errorf("camp %s: %w", cj.ID, err)
	}

	for _, pj := range cj.Plans {
		plan, err := planFromJSON(pj)
		if err != nil {
			return nil, fmt.Errorf("camp %s: %w", cj.ID, err)
		}
		camp.Plans = append(camp.Plans, *plan)
	}

	return camp, nil
}

func planFromJSON(pj PlanJSON) (*catalog.Plan, error) {
	if pj.ID == "" {
		return nil, fmt.Errorf("plan definition requires an id")
	}

	plan := &catalog.Plan{
		ID:          pricing.PlanID(pj.ID),
		Name:        pj.Name,
		PCRentalFee: pricing.Money(pj.PCRentalFee),
		Capacity:    pj.Capacity,
	}

	var err error
	if plan.StartDate, err = parseRequiredDate(pj.StartDate, "start_date"); err != nil {
		return nil, fmt.Errorf("plan %s: %w", pj.ID, err)
	}
	if plan.EndDate, err = parseRequiredDate(pj.EndDate, "end_date"); err != nil {
		return nil, fmt.Errorf("plan %s: %w", pj.ID, err)
	}
	if plan.CancelFeeStartDate, err = parseOptionalDate(pj.CancelFeeStartDate, "cancel_fee_start_date"); err != nil {
		return nil, fmt.Errorf("plan %s: %w", pj.ID, err)
	}
	if plan.ApplyDeadline, err = parseOptionalDate(pj.ApplyDeadline, "apply_deadline"); err != nil {
		return nil, fmt.Errorf("plan %s: %w", pj.ID, err)
	}

	for _, rj := range pj.CancelRates {
		plan.RateTable = append(plan.RateTable, pricing.RateThreshold{
			DaysBefore: rj.DaysBefore,
			Rate:       decimal.NewFromFloat(rj.Rate),
		})
	}

	for _, sj := range pj.Stays {
		stay, err := stayFromJSON(sj)
		if err != nil {
			return nil, fmt.Errorf("plan %s: %w", pj.ID, err)
		}
		plan.Stays = append(plan.Stays, *stay)
	}

	return plan, nil
}

func stayFromJSON(sj StayJSON) (*pricing.StayPlan, error) {
	if sj.ID == "" {
		return nil, fmt.Errorf("stay definition requires an id")
	}

	stay := &pricing.StayPlan{
		ID:         sj.ID,
		Name:       sj.Name,
		Price:      pricing.Money(sj.Price),
		TravelCost: pricing.Money(sj.TravelCost),
	}

	for _, ej := range sj.EarlyDiscounts {
		until, err := parseRequiredDate(ej.Until, "early discount until")
		if err != nil {
			return nil, fmt.Errorf("stay %s: %w", sj.ID, err)
		}
		stay.EarlyDiscounts = append(stay.EarlyDiscounts, pricing.EarlyDiscount{
			Until:  until,
			Amount: pricing.Money(ej.Amount),
		})
	}

	return stay, nil
}

// =============================================================================
// SERIALIZATION
// =============================================================================

// ToJSON converts a catalog.Camp back to its JSON representation, for
// storage and the admin API.
func ToJSON(camp *catalog.Camp) CampJSON {
	cj := CampJSON{
		ID:                 camp.ID,
		Name:               camp.Name,
		Season:             camp.Season,
		CancelFeeStartDate: formatOptionalDate(camp.CancelFeeStartDate),
		ApplyDeadline:      formatOptionalDate(camp.ApplyDeadline),
	}

	for i := range camp.Plans {
		p := &camp.Plans[i]
		pj := PlanJSON{
			ID:                 string(p.ID),
			Name:               p.Name,
			StartDate:          p.StartDate.String(),
			EndDate:            p.EndDate.String(),
			CancelFeeStartDate: formatOptionalDate(p.CancelFeeStartDate),
			ApplyDeadline:      formatOptionalDate(p.ApplyDeadline),
			PCRentalFee:        int64(p.PCRentalFee),
			Capacity:           p.Capacity,
		}
		for _, th := range p.RateTable {
			rate, _ := th.Rate.Float64()
			pj.CancelRates = append(pj.CancelRates, CancelRateJSON{DaysBefore: th.DaysBefore, Rate: rate})
		}
		for _, st := range p.Stays {
			sj := StayJSON{
				ID:         st.ID,
				Name:       st.Name,
				Price:      int64(st.Price),
				TravelCost: int64(st.TravelCost),
			}
			for _, ed := range st.EarlyDiscounts {
				sj.EarlyDiscounts = append(sj.EarlyDiscounts, EarlyDiscountJSON{
					Until:  ed.Until.String(),
					Amount: int64(ed.Amount),
				})
			}
			pj.Stays = append(pj.Stays, sj)
		}
		cj.Plans = append(cj.Plans, pj)
	}

	return cj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRequiredDate(s, field string) (pricing.Date, error) {
	if s == "" {
		return pricing.Date{}, fmt.Errorf("missing %s", field)
	}
	d, err := pricing.ParseDate(s)
	if err != nil {
		return pricing.Date{}, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

func parseOptionalDate(s, field string) (*pricing.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := parseRequiredDate(s, field)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func formatOptionalDate(d *pricing.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}
