/*
handlers_test.go - HTTP-level tests for the billing API

Tests for:
- Camp registration and listing
- Enrollment, quoting, cancellation and verification endpoints
- Error status mapping (404 / 409 / 400)
- Scenario loading
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/camp-billing/pricing"
	"github.com/warp/camp-billing/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store)
	return h, NewRouter(h)
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

const testCampBody = `{
	"config": {
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
					{"days_before": 2, "rate": 50},
					{"days_before": 15, "rate": 30},
					{"days_before": 30, "rate": 20}
				],
				"stays": [
					{"id": "stay-std", "name": "Standard Room", "price": 34500}
				]
			}
		]
	}
}`

const testEnrollBody = `{
	"aggregate_id": "fam-1",
	"camp_id": "summer-2026",
	"applied_at": "2026-06-15",
	"students": [
		{"name": "Hanako", "plan_id": "plan-a", "stay_id": "stay-std", "pc_rental": true}
	],
	"points_used": 4000
}`

func seedCampAndEnroll(t *testing.T, router http.Handler) InvoiceDTO {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/camps", testCampBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/enrollments", testEnrollBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBody[InvoiceDTO](t, rec)
}

// =============================================================================
// CAMP ENDPOINTS
// =============================================================================

func TestCreateAndListCamps(t *testing.T) {
	h, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/camps", testCampBody)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/camps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	camps := decodeBody[[]CampDTO](t, rec)
	require.Len(t, camps, 1)
	assert.Equal(t, "summer-2026", camps[0].ID)
	assert.Equal(t, "2026-summer", camps[0].Season)

	// The definition is persisted, so a fresh handler can reload it
	h2 := NewHandler(h.Store)
	require.NoError(t, h2.LoadCamps(context.Background()))
	assert.NotNil(t, h2.Catalog.Camp("summer-2026"))
}

func TestGetCamp_NotFound(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/camps/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCamp_InvalidDefinition(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/camps", `{"config": {"name": "no id"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ENROLLMENT ENDPOINTS
// =============================================================================

func TestCreateEnrollment(t *testing.T) {
	_, router := newTestRouter(t)

	inv := seedCampAndEnroll(t, router)

	assert.Equal(t, "fam-1-inv-1", inv.ID)
	assert.Equal(t, pricing.Money(39500), inv.Breakdown.TotalPrice)
	assert.Equal(t, pricing.Money(39050), inv.Breakdown.Price)
}

func TestCreateEnrollment_DuplicateAggregate(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/enrollments", testEnrollBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateEnrollment_UnknownPlan(t *testing.T) {
	_, router := newTestRouter(t)
	doRequest(t, router, http.MethodPost, "/api/camps", testCampBody)

	rec := doRequest(t, router, http.MethodPost, "/api/enrollments", `{
		"aggregate_id": "fam-x",
		"camp_id": "summer-2026",
		"applied_at": "2026-06-15",
		"students": [{"name": "X", "plan_id": "nope"}]
	}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEnrollment(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodGet, "/api/enrollments/fam-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	agg := decodeBody[AggregateDTO](t, rec)
	assert.Equal(t, "fam-1", agg.ID)
	assert.False(t, agg.Cancelled)
	require.Len(t, agg.Lines, 1)
	assert.Equal(t, "confirmed", agg.Lines[0].Status)
	require.Len(t, agg.Invoices, 1)
}

func TestGetEnrollment_NotFound(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodGet, "/api/enrollments/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuoteEnrollment(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodGet, "/api/enrollments/fam-1/quote?as_of=2026-07-01", "")
	require.Equal(t, http.StatusOK, rec.Code)

	b := decodeBody[pricing.PriceBreakdown](t, rec)
	assert.Equal(t, pricing.Money(39050), b.Price)

	// Quoting must not have appended an invoice
	rec = doRequest(t, router, http.MethodGet, "/api/enrollments/fam-1", "")
	agg := decodeBody[AggregateDTO](t, rec)
	assert.Len(t, agg.Invoices, 1)
}

func TestRepriceEnrollment(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/enrollments/fam-1/reprice", `{"as_of": "2026-07-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	inv := decodeBody[InvoiceDTO](t, rec)
	assert.Equal(t, "fam-1-inv-2", inv.ID)
	assert.Equal(t, pricing.Money(39050), inv.Breakdown.Price)
}

// =============================================================================
// CANCELLATION AND VERIFICATION
// =============================================================================

func TestCancelEnrollment_BeforeVerification(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/enrollments/fam-1/cancel", `{"as_of": "2026-08-09"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	inv := decodeBody[InvoiceDTO](t, rec)
	assert.Equal(t, pricing.Money(0), inv.Breakdown.Price, "no fee before payment verification")
}

func TestCancelEnrollment_AfterVerification(t *testing.T) {
	_, router := newTestRouter(t)
	first := seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodPost,
		"/api/enrollments/fam-1/invoices/"+first.ID+"/verify", `{"verified_at": "2026-06-16"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// The day before camp: 80% bucket, fee (39500-4000)*0.8
	rec = doRequest(t, router, http.MethodPost, "/api/enrollments/fam-1/cancel", `{"as_of": "2026-08-09"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	inv := decodeBody[InvoiceDTO](t, rec)
	line := inv.Breakdown.Lines["fam-1-line-1"]
	assert.Equal(t, pricing.Money(28400), line.CancelFee)
	assert.Equal(t, int64(80), line.CancelRate)
	assert.Equal(t, pricing.Money(31240), inv.Breakdown.Price)
}

func TestCancelLine_Unknown(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/enrollments/fam-1/lines/nope/cancel", `{"as_of": "2026-08-09"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyInvoice_Unknown(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/enrollments/fam-1/invoices/nope/verify", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestLoadScenario_CancellationFees(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "cancellation-fees"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/enrollments/yamada", "")
	require.Equal(t, http.StatusOK, rec.Code)
	agg := decodeBody[AggregateDTO](t, rec)
	require.Len(t, agg.Lines, 2)
	assert.Equal(t, "cancelled", agg.Lines[1].Status)
	require.Len(t, agg.Invoices, 2)
	assert.NotEmpty(t, agg.Invoices[0].VerifiedAt)

	rec = doRequest(t, router, http.MethodGet, "/api/scenarios/current", "")
	current := decodeBody[ScenarioDTO](t, rec)
	assert.Equal(t, "cancellation-fees", current.ID)
}

func TestLoadScenario_Unknown(t *testing.T) {
	_, router := newTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/scenarios/load", `{"scenario_id": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetDatabase(t *testing.T) {
	_, router := newTestRouter(t)
	seedCampAndEnroll(t, router)

	rec := doRequest(t, router, http.MethodPost, "/api/scenarios/reset", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/camps", "")
	camps := decodeBody[[]CampDTO](t, rec)
	assert.Empty(t, camps)

	rec = doRequest(t, router, http.MethodGet, "/api/enrollments/fam-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
