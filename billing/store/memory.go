// Package store provides billing.Store implementations.
package store

import (
	"context"
	"sync"

	"github.com/warp/camp-billing/billing"
	"github.com/warp/camp-billing/pricing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	aggregates map[pricing.AggregateID]*pricing.Aggregate
	invoiceIDs map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		aggregates: make(map[pricing.AggregateID]*pricing.Aggregate),
		invoiceIDs: make(map[string]bool),
	}
}

func (m *Memory) CreateAggregate(_ context.Context, agg *pricing.Aggregate, first *pricing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.aggregates[agg.ID]; ok {
		return billing.ErrAggregateExists
	}
	if first != nil && m.invoiceIDs[first.ID] {
		return billing.ErrDuplicateInvoiceID
	}

	stored := cloneAggregate(agg)
	if first != nil {
		stored.History = append(stored.History, *first)
		m.invoiceIDs[first.ID] = true
	}
	m.aggregates[agg.ID] = stored
	return nil
}

func (m *Memory) GetAggregate(_ context.Context, id pricing.AggregateID) (*pricing.Aggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agg, ok := m.aggregates[id]
	if !ok {
		return nil, billing.ErrAggregateNotFound
	}
	return cloneAggregate(agg), nil
}

// SaveAggregate persists line statuses and appends the invoice. All or
// nothing: a duplicate invoice ID leaves the stored statuses untouched.
func (m *Memory) SaveAggregate(_ context.Context, agg *pricing.Aggregate, invoice *pricing.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.aggregates[agg.ID]
	if !ok {
		return billing.ErrAggregateNotFound
	}
	if invoice != nil && m.invoiceIDs[invoice.ID] {
		return billing.ErrDuplicateInvoiceID
	}

	history := stored.History
	stored = cloneAggregate(agg)
	stored.History = history
	if invoice != nil {
		stored.History = append(stored.History, *invoice)
		m.invoiceIDs[invoice.ID] = true
	}
	m.aggregates[agg.ID] = stored
	return nil
}

func (m *Memory) MarkVerified(_ context.Context, id pricing.AggregateID, invoiceID string, at pricing.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.aggregates[id]
	if !ok {
		return billing.ErrAggregateNotFound
	}
	for i := range agg.History {
		if agg.History[i].ID == invoiceID {
			v := at
			agg.History[i].VerifiedAt = &v
			return nil
		}
	}
	return billing.ErrInvoiceNotFound
}

// cloneAggregate copies everything callers can mutate: the line slice
// with its cancellation stamps, and the history slice. Breakdown
// internals are immutable by contract and shared.
func cloneAggregate(agg *pricing.Aggregate) *pricing.Aggregate {
	out := *agg

	out.Lines = make([]pricing.LineItem, len(agg.Lines))
	copy(out.Lines, agg.Lines)
	for i := range out.Lines {
		if out.Lines[i].CancelledAt != nil {
			d := *out.Lines[i].CancelledAt
			out.Lines[i].CancelledAt = &d
		}
	}

	out.Coupons = append([]pricing.Coupon(nil), agg.Coupons...)
	out.History = append([]pricing.Invoice(nil), agg.History...)
	return &out
}
