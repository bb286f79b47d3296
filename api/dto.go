/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Camps:
    CampDTO (wraps factory.CampJSON), CreateCampRequest

  Enrollments:
    EnrollRequest, StudentDTO, AggregateDTO, LineDTO

  Invoices:
    InvoiceDTO (carries the breakdown as priced by the engine)

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

DATES:
  All dates travel as "YYYY-MM-DD" strings. Breakdown amounts are whole
  currency units, matching the engine's Money type.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/camp.go: CampJSON type
*/
package api

import (
	"github.com/warp/camp-billing/factory"
	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// CAMP TYPES
// =============================================================================

// CampDTO represents a camp in API responses.
type CampDTO struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Season string           `json:"season,omitempty"`
	Config factory.CampJSON `json:"config"`
}

// CreateCampRequest is the request to register a camp definition.
type CreateCampRequest struct {
	Config factory.CampJSON `json:"config"`
}

// =============================================================================
// ENROLLMENT TYPES
// =============================================================================

// StudentDTO is one student's booking within an enrollment request.
type StudentDTO struct {
	Name     string              `json:"name"`
	PlanID   string              `json:"plan_id"`
	StayID   string              `json:"stay_id,omitempty"`
	PCRental bool                `json:"pc_rental,omitempty"`
	Rentals  []pricing.RentalItem `json:"rentals,omitempty"`

	Preentered bool `json:"preentered,omitempty"`
	Returning  bool `json:"returning,omitempty"`
}

// EnrollRequest is the request to enroll a family.
type EnrollRequest struct {
	AggregateID string `json:"aggregate_id"`
	CampID      string `json:"camp_id"`
	AppliedAt   string `json:"applied_at"`

	Students []StudentDTO `json:"students"`

	PaymentMethod   string   `json:"payment_method,omitempty"`
	CouponCodes     []string `json:"coupon_codes,omitempty"`
	IntroCouponCode string   `json:"intro_coupon_code,omitempty"`
	FirstEnrollment bool     `json:"first_enrollment,omitempty"`
	PointsUsed      int64    `json:"points_used,omitempty"`
}

// AsOfRequest carries the effective date of a state-changing call.
type AsOfRequest struct {
	AsOf string `json:"as_of"`
}

// VerifyRequest stamps the payment-capture date on an invoice.
type VerifyRequest struct {
	VerifiedAt string `json:"verified_at"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LineDTO represents one student's booking in API responses.
type LineDTO struct {
	ID          string `json:"id"`
	StudentName string `json:"student_name"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at,omitempty"`

	PlanID       string `json:"plan_id,omitempty"`
	PlanName     string `json:"plan_name,omitempty"`
	StayID       string `json:"stay_id,omitempty"`
	PCRental     bool   `json:"pc_rental,omitempty"`
	PreentryRate int    `json:"preentry_rate,omitempty"`
}

// InvoiceDTO represents one immutable priced snapshot.
type InvoiceDTO struct {
	ID         string                 `json:"id"`
	CreatedAt  string                 `json:"created_at"`
	VerifiedAt string                 `json:"verified_at,omitempty"`
	Breakdown  pricing.PriceBreakdown `json:"breakdown"`
}

// AggregateDTO represents a family's enrollment with its invoice history.
type AggregateDTO struct {
	ID           string       `json:"id"`
	AppliedAt    string       `json:"applied_at"`
	SiblingCount int          `json:"sibling_count"`
	PointsUsed   int64        `json:"points_used,omitempty"`
	Cancelled    bool         `json:"cancelled"`
	Lines        []LineDTO    `json:"lines"`
	Invoices     []InvoiceDTO `json:"invoices"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// LoadScenarioRequest selects the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toInvoiceDTO(inv pricing.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:        inv.ID,
		CreatedAt: inv.CreatedAt.String(),
		Breakdown: inv.Breakdown,
	}
	if inv.VerifiedAt != nil {
		dto.VerifiedAt = inv.VerifiedAt.String()
	}
	return dto
}

func toLineDTO(line pricing.LineItem) LineDTO {
	dto := LineDTO{
		ID:          string(line.ID),
		StudentName: line.StudentName,
		Status:      string(line.Status),
		PCRental:    line.PCRental,
		PreentryRate: line.PreentryRate,
	}
	if line.CancelledAt != nil {
		dto.CancelledAt = line.CancelledAt.String()
	}
	if line.Plan != nil {
		dto.PlanID = string(line.Plan.ID)
		dto.PlanName = line.Plan.Name
	}
	if line.Stay != nil {
		dto.StayID = line.Stay.ID
	}
	return dto
}

func toAggregateDTO(agg *pricing.Aggregate) AggregateDTO {
	dto := AggregateDTO{
		ID:           string(agg.ID),
		AppliedAt:    agg.AppliedAt.String(),
		SiblingCount: agg.SiblingCount,
		PointsUsed:   int64(agg.PointsUsed),
		Cancelled:    agg.Cancelled(),
		Lines:        make([]LineDTO, 0, len(agg.Lines)),
		Invoices:     make([]InvoiceDTO, 0, len(agg.History)),
	}
	for _, line := range agg.Lines {
		dto.Lines = append(dto.Lines, toLineDTO(line))
	}
	for _, inv := range agg.History {
		dto.Invoices = append(dto.Invoices, toInvoiceDTO(inv))
	}
	return dto
}
