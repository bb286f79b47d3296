package sqlite_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/camp-billing/billing"
	"github.com/warp/camp-billing/pricing"
	"github.com/warp/camp-billing/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func date(y int, m time.Month, d int) pricing.Date {
	return pricing.NewDate(y, m, d)
}

func testAggregate(id pricing.AggregateID) *pricing.Aggregate {
	plan := &pricing.PlanConfig{
		ID:        "plan-a",
		Name:      "Session A",
		StartDate: date(2026, time.August, 10),
		EndDate:   date(2026, time.August, 14),
		RateTable: pricing.RateTable{
			{DaysBefore: 1, Rate: decimal.NewFromInt(80)},
			{DaysBefore: 30, Rate: decimal.NewFromInt(20)},
		},
		PCRentalFee: 5000,
	}
	return &pricing.Aggregate{
		ID:        id,
		AppliedAt: date(2026, time.June, 15),
		Lines: []pricing.LineItem{{
			ID:          pricing.LineID(string(id) + "-line-1"),
			StudentName: "Hanako",
			Status:      pricing.StatusConfirmed,
			Plan:        plan,
			Stay:        &pricing.StayPlan{ID: "stay-std", Name: "Standard Room", Price: 34500},
			PCRental:    true,
		}},
		PointsUsed: 4000,
	}
}

func testInvoice(agg *pricing.Aggregate, seq int, createdAt pricing.Date) *pricing.Invoice {
	b, err := pricing.NewEngine().Calculate(*agg, createdAt, nil)
	if err != nil {
		panic(err)
	}
	return &pricing.Invoice{
		ID:        fmt.Sprintf("%s-inv-%d", agg.ID, seq),
		CreatedAt: createdAt,
		Breakdown: *b,
	}
}

// =============================================================================
// AGGREGATE ROUND TRIP
// =============================================================================

func TestSQLite_CreateAndLoadAggregate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agg := testAggregate("fam-1")
	inv := testInvoice(agg, 1, date(2026, time.June, 15))
	require.NoError(t, store.CreateAggregate(ctx, agg, inv))

	loaded, err := store.GetAggregate(ctx, "fam-1")
	require.NoError(t, err)

	assert.Equal(t, agg.ID, loaded.ID)
	assert.True(t, loaded.AppliedAt.Equal(agg.AppliedAt))
	require.Len(t, loaded.Lines, 1)
	assert.Equal(t, "Hanako", loaded.Lines[0].StudentName)
	require.NotNil(t, loaded.Lines[0].Plan)
	assert.True(t, loaded.Lines[0].Plan.RateTable[0].Rate.Equal(decimal.NewFromInt(80)))

	require.Len(t, loaded.History, 1)
	assert.Equal(t, inv.ID, loaded.History[0].ID)
	assert.Equal(t, pricing.Money(39050), loaded.History[0].Breakdown.Price)
	assert.Nil(t, loaded.History[0].VerifiedAt)
}

func TestSQLite_DuplicateAggregateRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agg := testAggregate("fam-1")
	require.NoError(t, store.CreateAggregate(ctx, agg, nil))

	err := store.CreateAggregate(ctx, testAggregate("fam-1"), nil)
	assert.ErrorIs(t, err, billing.ErrAggregateExists)
}

func TestSQLite_GetUnknownAggregate(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetAggregate(context.Background(), "nope")
	assert.ErrorIs(t, err, billing.ErrAggregateNotFound)
}

// =============================================================================
// SAVE + INVOICE APPEND
// =============================================================================

func TestSQLite_SaveAggregate_PersistsStampAndAppendsInvoice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	engine := pricing.NewEngine()

	agg := testAggregate("fam-1")
	first := testInvoice(agg, 1, date(2026, time.June, 15))
	require.NoError(t, store.CreateAggregate(ctx, agg, first))
	require.NoError(t, store.MarkVerified(ctx, "fam-1", first.ID, date(2026, time.June, 16)))

	// Cancel through the engine against the loaded state
	loaded, err := store.GetAggregate(ctx, "fam-1")
	require.NoError(t, err)
	b, err := engine.CancelAll(loaded, date(2026, time.August, 9))
	require.NoError(t, err)

	second := &pricing.Invoice{ID: "fam-1-inv-2", CreatedAt: date(2026, time.August, 9), Breakdown: *b}
	require.NoError(t, store.SaveAggregate(ctx, loaded, second))

	reloaded, err := store.GetAggregate(ctx, "fam-1")
	require.NoError(t, err)
	require.Len(t, reloaded.History, 2)
	assert.Equal(t, pricing.StatusCancelled, reloaded.Lines[0].Status)
	require.NotNil(t, reloaded.Lines[0].CancelledAt)
	assert.True(t, reloaded.Lines[0].CancelledAt.Equal(date(2026, time.August, 9)))
	assert.Equal(t, pricing.Money(28400), reloaded.History[1].Breakdown.Lines["fam-1-line-1"].CancelFee)
}

func TestSQLite_SaveAggregate_UnknownAggregate(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveAggregate(context.Background(), testAggregate("nope"), nil)
	assert.ErrorIs(t, err, billing.ErrAggregateNotFound)
}

func TestSQLite_DuplicateInvoiceIDRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agg := testAggregate("fam-1")
	inv := testInvoice(agg, 1, date(2026, time.June, 15))
	require.NoError(t, store.CreateAggregate(ctx, agg, inv))

	err := store.SaveAggregate(ctx, agg, inv)
	assert.ErrorIs(t, err, billing.ErrDuplicateInvoiceID)

	// The atomic save must not have bumped the history either
	loaded, err := store.GetAggregate(ctx, "fam-1")
	require.NoError(t, err)
	assert.Len(t, loaded.History, 1)
}

// =============================================================================
// VERIFICATION
// =============================================================================

func TestSQLite_MarkVerified(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agg := testAggregate("fam-1")
	inv := testInvoice(agg, 1, date(2026, time.June, 15))
	require.NoError(t, store.CreateAggregate(ctx, agg, inv))

	require.NoError(t, store.MarkVerified(ctx, "fam-1", inv.ID, date(2026, time.June, 16)))

	loaded, err := store.GetAggregate(ctx, "fam-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.History[0].VerifiedAt)
	assert.True(t, loaded.History[0].VerifiedAt.Equal(date(2026, time.June, 16)))
	assert.True(t, loaded.HasVerifiedInvoice())
}

func TestSQLite_MarkVerified_Unknown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	agg := testAggregate("fam-1")
	require.NoError(t, store.CreateAggregate(ctx, agg, testInvoice(agg, 1, date(2026, time.June, 15))))

	err := store.MarkVerified(ctx, "fam-1", "nope", date(2026, time.June, 16))
	assert.ErrorIs(t, err, billing.ErrInvoiceNotFound)

	err = store.MarkVerified(ctx, "nope", "whatever", date(2026, time.June, 16))
	assert.ErrorIs(t, err, billing.ErrAggregateNotFound)
}

// =============================================================================
// CAMP DEFINITIONS
// =============================================================================

func TestSQLite_CampRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCamp(ctx, sqlite.CampRecord{
		ID: "summer-2026", Season: "2026-summer", ConfigJSON: `{"id":"summer-2026"}`,
	}))
	require.NoError(t, store.SaveCamp(ctx, sqlite.CampRecord{
		ID: "winter-2026", Season: "2026-winter", ConfigJSON: `{"id":"winter-2026"}`,
	}))

	rec, err := store.GetCamp(ctx, "summer-2026")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "2026-summer", rec.Season)

	missing, err := store.GetCamp(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := store.ListCamps(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	summer, err := store.ListCamps(ctx, "2026-summer")
	require.NoError(t, err)
	require.Len(t, summer, 1)
	assert.Equal(t, "summer-2026", summer[0].ID)

	// Upsert replaces the config
	require.NoError(t, store.SaveCamp(ctx, sqlite.CampRecord{
		ID: "summer-2026", Season: "2026-summer", ConfigJSON: `{"id":"summer-2026","v":2}`,
	}))
	rec, err = store.GetCamp(ctx, "summer-2026")
	require.NoError(t, err)
	assert.Contains(t, rec.ConfigJSON, `"v":2`)
}
