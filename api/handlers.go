/*
handlers.go - HTTP API handlers for the camp billing system

PURPOSE:
  Exposes the billing engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the billing service.

ENDPOINTS:
  Camps:
    GET    /api/camps                  List registered camps
    POST   /api/camps                  Register a camp from JSON
    GET    /api/camps/{id}             Get one camp definition

  Enrollments:
    POST   /api/enrollments            Enroll a family (first invoice)
    GET    /api/enrollments/{id}       Aggregate with invoice history
    GET    /api/enrollments/{id}/quote Recompute without persisting
    POST   /api/enrollments/{id}/reprice            Append a fresh invoice
    POST   /api/enrollments/{id}/cancel             Cancel every line
    POST   /api/enrollments/{id}/lines/{lineID}/cancel  Cancel one line
    POST   /api/enrollments/{id}/invoices/{invoiceID}/verify  Payment capture

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario
    POST   /api/scenarios/reset        Reset database

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unknown catalog references, bad dates
  - 404: Aggregate, line or invoice not found
  - 409: Duplicate aggregate or invoice
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. All endpoints are public; front with a
  gateway in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/camp-billing/billing"
	"github.com/warp/camp-billing/catalog"
	"github.com/warp/camp-billing/factory"
	"github.com/warp/camp-billing/pricing"
	"github.com/warp/camp-billing/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Catalog *catalog.Catalog
	Service *billing.Service

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store.
func NewHandler(store *sqlite.Store) *Handler {
	cat := catalog.New()
	return &Handler{
		Store:   store,
		Catalog: cat,
		Service: billing.NewService(cat, store),
	}
}

// LoadCamps loads all persisted camp definitions into the catalog.
func (h *Handler) LoadCamps(ctx context.Context) error {
	records, err := h.Store.ListCamps(ctx, "")
	if err != nil {
		return err
	}
	for _, rec := range records {
		camp, err := factory.ParseCamp(rec.ConfigJSON)
		if err != nil {
			continue // Skip invalid definitions
		}
		h.Catalog.AddCamp(camp)
	}
	return nil
}

// =============================================================================
// CAMP HANDLERS
// =============================================================================

// ListCamps returns all registered camps.
func (h *Handler) ListCamps(w http.ResponseWriter, r *http.Request) {
	camps := h.Catalog.Camps()
	dtos := make([]CampDTO, len(camps))
	for i, camp := range camps {
		dtos[i] = CampDTO{
			ID:     camp.ID,
			Name:   camp.Name,
			Season: camp.Season,
			Config: factory.ToJSON(camp),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCamp returns one camp definition.
func (h *Handler) GetCamp(w http.ResponseWriter, r *http.Request) {
	camp := h.Catalog.Camp(chi.URLParam(r, "id"))
	if camp == nil {
		writeError(w, http.StatusNotFound, "Camp not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, CampDTO{
		ID:     camp.ID,
		Name:   camp.Name,
		Season: camp.Season,
		Config: factory.ToJSON(camp),
	})
}

// CreateCamp registers a camp definition and persists it.
func (h *Handler) CreateCamp(w http.ResponseWriter, r *http.Request) {
	var req CreateCampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	camp, err := factory.FromJSON(req.Config)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid camp definition", err)
		return
	}

	configJSON, err := json.Marshal(factory.ToJSON(camp))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to serialize camp", err)
		return
	}
	if err := h.Store.SaveCamp(r.Context(), sqlite.CampRecord{
		ID:         camp.ID,
		Season:     camp.Season,
		ConfigJSON: string(configJSON),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save camp", err)
		return
	}
	h.Catalog.AddCamp(camp)

	writeJSON(w, http.StatusCreated, CampDTO{
		ID:     camp.ID,
		Name:   camp.Name,
		Season: camp.Season,
		Config: factory.ToJSON(camp),
	})
}

// =============================================================================
// ENROLLMENT HANDLERS
// =============================================================================

// CreateEnrollment enrolls a family and returns the first invoice.
func (h *Handler) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	appliedAt, err := pricing.ParseDate(req.AppliedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid applied_at format (use YYYY-MM-DD)", err)
		return
	}

	enroll := billing.EnrollmentRequest{
		AggregateID:     pricing.AggregateID(req.AggregateID),
		CampID:          req.CampID,
		AppliedAt:       appliedAt,
		PaymentMethod:   req.PaymentMethod,
		CouponCodes:     req.CouponCodes,
		IntroCouponCode: req.IntroCouponCode,
		FirstEnrollment: req.FirstEnrollment,
		PointsUsed:      pricing.Money(req.PointsUsed),
	}
	for _, st := range req.Students {
		enroll.Students = append(enroll.Students, billing.StudentEnrollment{
			Name:       st.Name,
			PlanID:     pricing.PlanID(st.PlanID),
			StayID:     st.StayID,
			PCRental:   st.PCRental,
			Rentals:    st.Rentals,
			Preentered: st.Preentered,
			Returning:  st.Returning,
		})
	}

	inv, err := h.Service.Enroll(r.Context(), enroll)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// GetEnrollment returns an aggregate with its invoice history.
func (h *Handler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	agg, err := h.Store.GetAggregate(r.Context(), pricing.AggregateID(chi.URLParam(r, "id")))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAggregateDTO(agg))
}

// QuoteEnrollment recomputes the breakdown without persisting anything.
// GET /api/enrollments/{id}/quote?as_of=YYYY-MM-DD
func (h *Handler) QuoteEnrollment(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	b, err := h.Service.Quote(r.Context(), pricing.AggregateID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// RepriceEnrollment recomputes the breakdown and appends it as an invoice.
func (h *Handler) RepriceEnrollment(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	inv, err := h.Service.Reprice(r.Context(), pricing.AggregateID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// =============================================================================
// CANCELLATION HANDLERS
// =============================================================================

// CancelEnrollment cancels every remaining line in an aggregate.
func (h *Handler) CancelEnrollment(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	inv, err := h.Service.CancelAll(r.Context(), pricing.AggregateID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// CancelLine cancels a single student's booking.
func (h *Handler) CancelLine(w http.ResponseWriter, r *http.Request) {
	asOf, err := asOfBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	inv, err := h.Service.CancelLine(r.Context(),
		pricing.AggregateID(chi.URLParam(r, "id")),
		pricing.LineID(chi.URLParam(r, "lineID")),
		asOf)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// =============================================================================
// VERIFICATION HANDLER
// =============================================================================

// VerifyInvoice stamps the payment-capture date on an invoice.
func (h *Handler) VerifyInvoice(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	at := pricing.Today()
	if req.VerifiedAt != "" {
		parsed, err := pricing.ParseDate(req.VerifiedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid verified_at format (use YYYY-MM-DD)", err)
			return
		}
		at = parsed
	}

	err := h.Service.VerifyInvoice(r.Context(),
		pricing.AggregateID(chi.URLParam(r, "id")),
		chi.URLParam(r, "invoiceID"),
		at)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// =============================================================================
// RESET
// =============================================================================

// ResetDatabase clears all data and the in-memory catalog.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.Catalog = catalog.New()
	h.Service = billing.NewService(h.Catalog, h.Store)
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func asOfQuery(r *http.Request) (pricing.Date, error) {
	s := r.URL.Query().Get("as_of")
	if s == "" {
		return pricing.Today(), nil
	}
	return pricing.ParseDate(s)
}

func asOfBody(r *http.Request) (pricing.Date, error) {
	var req AsOfRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AsOf == "" {
		return pricing.Today(), nil
	}
	return pricing.ParseDate(req.AsOf)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps domain sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrAggregateNotFound),
		errors.Is(err, billing.ErrInvoiceNotFound),
		errors.Is(err, pricing.ErrLineNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, billing.ErrAggregateExists),
		errors.Is(err, billing.ErrDuplicateInvoiceID):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, catalog.ErrUnknownRef), pricing.IsConfiguration(err):
		writeError(w, http.StatusBadRequest, "Invalid enrollment", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
