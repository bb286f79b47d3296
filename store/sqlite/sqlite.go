/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements billing.Store plus camp-definition persistence using
  SQLite. In production the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

KEY TABLES:
  aggregates: One row per enrollment aggregate; the current snapshot
              (lines, discounts, cancellation stamps) as JSON
  invoices:   Append-only invoice history; one immutable breakdown per
              row. The only UPDATE ever issued sets verified_at.
  camps:      Stored camp/plan definitions as JSON (factory format)

APPEND-ONLY ENFORCEMENT:
  Invoice breakdowns are never updated or deleted. A correction is a new
  invoice row. MarkVerified touches verified_at and nothing else.

ATOMICITY:
  SaveAggregate updates the snapshot and inserts the invoice inside one
  database transaction, so a cancellation stamp can never be persisted
  without its invoice.

CONCURRENCY:
  sync.RWMutex plus WAL mode, as elsewhere in this codebase.

USAGE:
  store, err := sqlite.New("./data/camp-billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  svc := billing.NewService(cat, store)

SEE ALSO:
  - billing/store.go: Interface definition
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/camp-billing/billing"
	"github.com/warp/camp-billing/pricing"
)

// Store implements billing.Store and camp-definition persistence.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ billing.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Enrollment aggregates (current snapshot, history lives in invoices)
	CREATE TABLE IF NOT EXISTS aggregates (
		id TEXT PRIMARY KEY,
		snapshot_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Invoices (append-only; the single UPDATE ever issued sets verified_at)
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		aggregate_id TEXT NOT NULL REFERENCES aggregates(id),
		seq INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		verified_at TEXT,
		breakdown_json TEXT NOT NULL,
		UNIQUE(aggregate_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_aggregate
		ON invoices(aggregate_id, seq);

	-- Camp definitions (factory JSON format)
	CREATE TABLE IF NOT EXISTS camps (
		id TEXT PRIMARY KEY,
		season TEXT NOT NULL DEFAULT '',
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_camps_season
		ON camps(season);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BILLING STORE (billing.Store interface)
// =============================================================================

// storedSnapshot is the persisted shape of an aggregate: everything
// except the history, which lives in the invoices table.
type storedSnapshot struct {
	pricing.Aggregate
	History []pricing.Invoice `json:"-"`
}

func marshalSnapshot(agg *pricing.Aggregate) (string, error) {
	b, err := json.Marshal(storedSnapshot{Aggregate: *agg})
	if err != nil {
		return "", fmt.Errorf("failed to marshal aggregate %s: %w", agg.ID, err)
	}
	return string(b), nil
}

// CreateAggregate persists a new aggregate with its first invoice.
func (s *Store) CreateAggregate(ctx context.Context, agg *pricing.Aggregate, first *pricing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapJSON, err := marshalSnapshot(agg)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx,
		"INSERT INTO aggregates (id, snapshot_json, created_at, updated_at) VALUES (?, ?, ?, ?)",
		agg.ID, snapJSON, now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrAggregateExists
		}
		return fmt.Errorf("failed to insert aggregate: %w", err)
	}

	if first != nil {
		if err := insertInvoice(ctx, tx, agg.ID, 1, first); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetAggregate loads an aggregate with its full invoice history.
func (s *Store) GetAggregate(ctx context.Context, id pricing.AggregateID) (*pricing.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapJSON string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot_json FROM aggregates WHERE id = ?", id,
	).Scan(&snapJSON)
	if err == sql.ErrNoRows {
		return nil, billing.ErrAggregateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregate: %w", err)
	}

	var agg pricing.Aggregate
	if err := json.Unmarshal([]byte(snapJSON), &agg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal aggregate %s: %w", id, err)
	}

	history, err := s.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	agg.History = history
	return &agg, nil
}

// SaveAggregate persists line statuses and appends the invoice, atomically.
func (s *Store) SaveAggregate(ctx context.Context, agg *pricing.Aggregate, invoice *pricing.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapJSON, err := marshalSnapshot(agg)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE aggregates SET snapshot_json = ?, updated_at = ? WHERE id = ?",
		snapJSON, time.Now().UTC().Format(time.RFC3339), agg.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update aggregate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.ErrAggregateNotFound
	}

	if invoice != nil {
		var maxSeq int
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(seq), 0) FROM invoices WHERE aggregate_id = ?", agg.ID,
		).Scan(&maxSeq); err != nil {
			return fmt.Errorf("failed to read invoice sequence: %w", err)
		}
		if err := insertInvoice(ctx, tx, agg.ID, maxSeq+1, invoice); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// MarkVerified stamps the payment-capture date on an invoice.
func (s *Store) MarkVerified(ctx context.Context, id pricing.AggregateID, invoiceID string, at pricing.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE invoices SET verified_at = ? WHERE id = ? AND aggregate_id = ?",
		at.String(), invoiceID, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark invoice verified: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM aggregates WHERE id = ?", id,
	).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return billing.ErrAggregateNotFound
	}
	return billing.ErrInvoiceNotFound
}

func insertInvoice(ctx context.Context, tx *sql.Tx, aggID pricing.AggregateID, seq int, inv *pricing.Invoice) error {
	breakdownJSON, err := json.Marshal(inv.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal breakdown for invoice %s: %w", inv.ID, err)
	}

	var verifiedAt sql.NullString
	if inv.VerifiedAt != nil {
		verifiedAt = sql.NullString{String: inv.VerifiedAt.String(), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO invoices (id, aggregate_id, seq, created_at, verified_at, breakdown_json) VALUES (?, ?, ?, ?, ?, ?)",
		inv.ID, aggID, seq, inv.CreatedAt.String(), verifiedAt, string(breakdownJSON),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return billing.ErrDuplicateInvoiceID
		}
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	return nil
}

func (s *Store) loadHistory(ctx context.Context, id pricing.AggregateID) ([]pricing.Invoice, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, verified_at, breakdown_json FROM invoices WHERE aggregate_id = ? ORDER BY seq ASC",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var history []pricing.Invoice
	for rows.Next() {
		var (
			inv           pricing.Invoice
			createdAt     string
			verifiedAt    sql.NullString
			breakdownJSON string
		)
		if err := rows.Scan(&inv.ID, &createdAt, &verifiedAt, &breakdownJSON); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}

		if inv.CreatedAt, err = pricing.ParseDate(createdAt); err != nil {
			return nil, fmt.Errorf("invoice %s: bad created_at: %w", inv.ID, err)
		}
		if verifiedAt.Valid {
			d, err := pricing.ParseDate(verifiedAt.String)
			if err != nil {
				return nil, fmt.Errorf("invoice %s: bad verified_at: %w", inv.ID, err)
			}
			inv.VerifiedAt = &d
		}
		if err := json.Unmarshal([]byte(breakdownJSON), &inv.Breakdown); err != nil {
			return nil, fmt.Errorf("invoice %s: bad breakdown: %w", inv.ID, err)
		}

		history = append(history, inv)
	}
	return history, rows.Err()
}

// =============================================================================
// CAMP DEFINITIONS
// =============================================================================

// CampRecord is a stored camp definition in the factory's JSON format.
type CampRecord struct {
	ID         string
	Season     string
	ConfigJSON string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SaveCamp inserts or updates a camp definition.
func (s *Store) SaveCamp(ctx context.Context, rec CampRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO camps (id, season, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			season = excluded.season,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query, rec.ID, rec.Season, rec.ConfigJSON, now, now)
	return err
}

// GetCamp retrieves a camp definition by ID. Returns nil when absent.
func (s *Store) GetCamp(ctx context.Context, id string) (*CampRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec CampRecord
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, season, config_json, created_at, updated_at FROM camps WHERE id = ?", id,
	).Scan(&rec.ID, &rec.Season, &rec.ConfigJSON, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// ListCamps returns all camp definitions, optionally filtered by season.
func (s *Store) ListCamps(ctx context.Context, season string) ([]CampRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, season, config_json, created_at, updated_at FROM camps ORDER BY id"
	args := []any{}
	if season != "" {
		query = "SELECT id, season, config_json, created_at, updated_at FROM camps WHERE season = ? ORDER BY id"
		args = append(args, season)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CampRecord
	for rows.Next() {
		var rec CampRecord
		var createdAt, updatedAt string
		if err := rows.Scan(&rec.ID, &rec.Season, &rec.ConfigJSON, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"invoices", "aggregates", "camps"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
