/*
store.go - Persistence interface for aggregates and invoice history

PURPOSE:
  Defines the interface between the billing service and the database.

INVOICE CONTRACT:
  Invoice history is APPEND-ONLY. No Update, No Delete. A correction is
  a new invoice computed from the current snapshot. The single exception
  is MarkVerified, which stamps the payment-capture date on an existing
  invoice without touching its breakdown.

ATOMICITY:
  SaveAggregate persists the aggregate's current line statuses AND
  appends the new invoice in one transaction. A cancellation whose
  invoice failed to write must not leave the line stamped cancelled.

IMPLEMENTATIONS:
  - billing/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: Production SQLite
*/
package billing

import (
	"context"
	"errors"

	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrAggregateNotFound  = errors.New("aggregate not found")
	ErrAggregateExists    = errors.New("aggregate already exists")
	ErrInvoiceNotFound    = errors.New("invoice not found")
	ErrDuplicateInvoiceID = errors.New("duplicate invoice ID")
)

// =============================================================================
// STORE
// =============================================================================

// Store persists enrollment aggregates and their invoice histories.
type Store interface {
	// CreateAggregate persists a brand-new aggregate together with its
	// first invoice, atomically. Fails with ErrAggregateExists when the
	// ID is taken.
	CreateAggregate(ctx context.Context, agg *pricing.Aggregate, first *pricing.Invoice) error

	// GetAggregate loads an aggregate with its full invoice history,
	// oldest invoice first. The returned value is the caller's own copy.
	GetAggregate(ctx context.Context, id pricing.AggregateID) (*pricing.Aggregate, error)

	// SaveAggregate persists the aggregate's current line statuses and
	// appends the new invoice, atomically. The invoice may be nil for a
	// pure status save (not used by the service today, but the contract
	// allows it).
	SaveAggregate(ctx context.Context, agg *pricing.Aggregate, invoice *pricing.Invoice) error

	// MarkVerified stamps the payment-capture date on an invoice.
	MarkVerified(ctx context.Context, id pricing.AggregateID, invoiceID string, at pricing.Date) error
}
