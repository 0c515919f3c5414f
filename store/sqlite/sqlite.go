/*
Package sqlite provides the SQLite-backed reference price list and
reconciliation ledger.

PURPOSE:
  One database holds both halves of the system's state: the
  authoritative reference prices (with an audit trail of every change)
  and the ledger of flagged records and category totals produced by
  batch runs.

KEY TABLES:
  reference_prices:    activity -> (price, unit), the exact-match base
  reference_price_log: append-only audit of price changes
  flagged_records:     one row per flagged deviation
  category_totals:     per-certificate quantity rollups by work family

REPLACE SEMANTICS:
  ReplacePeriod deletes and re-inserts a (year, month) slice of the
  ledger inside one transaction. Re-running a period can only converge
  on the latest results, never duplicate them.

DECIMAL COLUMNS:
  Prices, quantities and adjusted values are stored as TEXT in decimal
  string form. REAL would silently lose precision on currency values.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite opened in WAL
  mode (readers don't block, single writer at a time).

USAGE:
  store, err := sqlite.New("./data/actas.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - reconcile/resolver.go: consumes ExactSnapshot
  - batch/runner.go:       calls ReplacePeriod after each period
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/acta-engine/reconcile"
)

// Store is the SQLite-backed price list and ledger.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store at the given database path.
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Reference prices (the exact-match base)
	CREATE TABLE IF NOT EXISTS reference_prices (
		activity TEXT PRIMARY KEY,
		price TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	-- Append-only audit of price changes
	CREATE TABLE IF NOT EXISTS reference_price_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		activity TEXT NOT NULL,
		old_price TEXT,
		new_price TEXT NOT NULL,
		changed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_price_log_activity
		ON reference_price_log(activity);

	-- Flagged deviations, one row each
	CREATE TABLE IF NOT EXISTS flagged_records (
		id TEXT PRIMARY KEY,
		year INTEGER NOT NULL,
		month TEXT NOT NULL,
		source_file TEXT NOT NULL,
		contractor TEXT NOT NULL,
		item_code TEXT NOT NULL,
		description TEXT NOT NULL,
		unit TEXT NOT NULL,
		declared_price TEXT NOT NULL,
		reference_price TEXT NOT NULL,
		quantity TEXT NOT NULL,
		adjusted_value TEXT NOT NULL,
		mode TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Period replacement and period queries (hot path)
	CREATE INDEX IF NOT EXISTS idx_flagged_records_period
		ON flagged_records(year, month);
	CREATE INDEX IF NOT EXISTS idx_flagged_records_contractor
		ON flagged_records(contractor);

	-- Per-certificate quantity rollups
	CREATE TABLE IF NOT EXISTS category_totals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		year INTEGER NOT NULL,
		month TEXT NOT NULL,
		source_file TEXT NOT NULL,
		contractor TEXT NOT NULL,
		excavation TEXT NOT NULL,
		backfill TEXT NOT NULL,
		concrete_mr TEXT NOT NULL,
		concrete_stamped TEXT NOT NULL,
		mode TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_category_totals_period
		ON category_totals(year, month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REFERENCE PRICES
// =============================================================================

// ReferenceEntry is one row of the reference price list.
type ReferenceEntry struct {
	Activity  string
	Price     decimal.Decimal
	Unit      string
	UpdatedAt time.Time
}

// UpsertReferencePrice inserts or updates one activity's reference
// price and appends the change to the audit log.
func (s *Store) UpsertReferencePrice(ctx context.Context, activity string, price decimal.Decimal, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var oldPrice sql.NullString
	err = tx.QueryRowContext(ctx,
		"SELECT price FROM reference_prices WHERE activity = ?", activity,
	).Scan(&oldPrice)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read current price: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reference_prices (activity, price, unit, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(activity) DO UPDATE SET
			price = excluded.price,
			unit = excluded.unit,
			updated_at = excluded.updated_at
	`, activity, price.String(), unit, now)
	if err != nil {
		return fmt.Errorf("failed to upsert reference price: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reference_price_log (activity, old_price, new_price, changed_at)
		VALUES (?, ?, ?, ?)
	`, activity, oldPrice, price.String(), now)
	if err != nil {
		return fmt.Errorf("failed to log price change: %w", err)
	}

	return tx.Commit()
}

// ListReferencePrices returns the full price list ordered by activity.
func (s *Store) ListReferencePrices(ctx context.Context) ([]ReferenceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT activity, price, unit, updated_at
		FROM reference_prices
		ORDER BY activity ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reference prices: %w", err)
	}
	defer rows.Close()

	var entries []ReferenceEntry
	for rows.Next() {
		var (
			e         ReferenceEntry
			price     string
			updatedAt string
		)
		if err := rows.Scan(&e.Activity, &price, &e.Unit, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reference price: %w", err)
		}
		e.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("corrupt price for %q: %w", e.Activity, err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// DeleteReferencePrice removes one activity from the price list. The
// audit log keeps its history.
func (s *Store) DeleteReferencePrice(ctx context.Context, activity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM reference_prices WHERE activity = ?", activity)
	if err != nil {
		return fmt.Errorf("failed to delete reference price: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PriceChange is one audit log row.
type PriceChange struct {
	Activity  string
	OldPrice  string // empty on first insert
	NewPrice  string
	ChangedAt time.Time
}

// PriceLog returns the audit trail for one activity, newest first.
func (s *Store) PriceLog(ctx context.Context, activity string) ([]PriceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT activity, old_price, new_price, changed_at
		FROM reference_price_log
		WHERE activity = ?
		ORDER BY id DESC
	`, activity)
	if err != nil {
		return nil, fmt.Errorf("failed to query price log: %w", err)
	}
	defer rows.Close()

	var changes []PriceChange
	for rows.Next() {
		var (
			c         PriceChange
			oldPrice  sql.NullString
			changedAt string
		)
		if err := rows.Scan(&c.Activity, &oldPrice, &c.NewPrice, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price change: %w", err)
		}
		c.OldPrice = oldPrice.String
		c.ChangedAt, _ = time.Parse(time.RFC3339, changedAt)
		changes = append(changes, c)
	}

	return changes, rows.Err()
}

// ExactSnapshot loads the price list keyed by normalized (description,
// unit) for exact-mode resolution. Entries without a unit cannot be
// matched exactly and are skipped.
func (s *Store) ExactSnapshot(ctx context.Context) (map[reconcile.RefKey]decimal.Decimal, error) {
	entries, err := s.ListReferencePrices(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := make(map[reconcile.RefKey]decimal.Decimal, len(entries))
	for _, e := range entries {
		key := reconcile.RefKey{
			Description: reconcile.NormalizeText(e.Activity),
			Unit:        reconcile.NormalizeUnit(e.Unit),
		}
		if key.Description == "" || key.Unit == "" {
			continue
		}
		snapshot[key] = e.Price
	}
	return snapshot, nil
}

// =============================================================================
// LEDGER - flagged records and category totals
// =============================================================================

// ReplacePeriod atomically swaps one period's slice of the ledger for
// the given records and totals. All errors wrap
// reconcile.ErrLedgerWrite: a half-written period must abort the run.
func (s *Store) ReplacePeriod(ctx context.Context, period reconcile.Period, records []reconcile.Record, totals []reconcile.CategoryTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", reconcile.ErrLedgerWrite, err)
	}
	defer tx.Rollback()

	for _, table := range []string{"flagged_records", "category_totals"} {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE year = ? AND month = ?", table),
			period.Year, period.Month)
		if err != nil {
			return fmt.Errorf("%w: clear %s: %v", reconcile.ErrLedgerWrite, table, err)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, r := range records {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO flagged_records
			(id, year, month, source_file, contractor, item_code, description, unit,
			 declared_price, reference_price, quantity, adjusted_value, mode, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			r.ID, r.Year, r.Month, r.SourceFile, r.Contractor,
			r.ItemCode, r.Description, r.Unit,
			r.DeclaredPrice.String(), r.ReferencePrice.String(),
			r.Quantity.String(), r.AdjustedValue.String(),
			string(r.Mode), now,
		)
		if err != nil {
			return fmt.Errorf("%w: insert record %s: %v", reconcile.ErrLedgerWrite, r.ID, err)
		}
	}

	for _, t := range totals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO category_totals
			(year, month, source_file, contractor,
			 excavation, backfill, concrete_mr, concrete_stamped, mode)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			t.Year, t.Month, t.SourceFile, t.Contractor,
			t.Excavation.String(), t.Backfill.String(),
			t.ConcreteMR.String(), t.ConcreteStamped.String(),
			string(t.Mode),
		)
		if err != nil {
			return fmt.Errorf("%w: insert totals for %s: %v", reconcile.ErrLedgerWrite, t.SourceFile, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", reconcile.ErrLedgerWrite, err)
	}
	return nil
}

// RecordsByPeriod returns one period's flagged records, ordered by
// contractor then source file.
func (s *Store) RecordsByPeriod(ctx context.Context, year int, month string) ([]reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, year, month, source_file, contractor, item_code, description, unit,
		       declared_price, reference_price, quantity, adjusted_value, mode
		FROM flagged_records
		WHERE year = ? AND month = ?
		ORDER BY contractor ASC, source_file ASC, item_code ASC
	`
	return s.queryRecords(ctx, query, year, month)
}

// AllRecords returns the whole ledger, ordered by period then
// contractor.
func (s *Store) AllRecords(ctx context.Context) ([]reconcile.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, year, month, source_file, contractor, item_code, description, unit,
		       declared_price, reference_price, quantity, adjusted_value, mode
		FROM flagged_records
		ORDER BY year ASC, month ASC, contractor ASC, source_file ASC
	`
	return s.queryRecords(ctx, query)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]reconcile.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []reconcile.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (reconcile.Record, error) {
	var (
		r              reconcile.Record
		declaredPrice  string
		referencePrice string
		quantity       string
		adjustedValue  string
		mode           string
	)

	err := rows.Scan(
		&r.ID, &r.Year, &r.Month, &r.SourceFile, &r.Contractor,
		&r.ItemCode, &r.Description, &r.Unit,
		&declaredPrice, &referencePrice, &quantity, &adjustedValue, &mode,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan record: %w", err)
	}

	if r.DeclaredPrice, err = decimal.NewFromString(declaredPrice); err != nil {
		return r, fmt.Errorf("corrupt declared price on %s: %w", r.ID, err)
	}
	if r.ReferencePrice, err = decimal.NewFromString(referencePrice); err != nil {
		return r, fmt.Errorf("corrupt reference price on %s: %w", r.ID, err)
	}
	if r.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return r, fmt.Errorf("corrupt quantity on %s: %w", r.ID, err)
	}
	if r.AdjustedValue, err = decimal.NewFromString(adjustedValue); err != nil {
		return r, fmt.Errorf("corrupt adjusted value on %s: %w", r.ID, err)
	}
	r.Mode = reconcile.Mode(mode)

	return r, nil
}

// TotalsByPeriod returns one period's per-certificate category totals.
func (s *Store) TotalsByPeriod(ctx context.Context, year int, month string) ([]reconcile.CategoryTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT year, month, source_file, contractor,
		       excavation, backfill, concrete_mr, concrete_stamped, mode
		FROM category_totals
		WHERE year = ? AND month = ?
		ORDER BY contractor ASC, source_file ASC
	`, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to query category totals: %w", err)
	}
	defer rows.Close()

	var totals []reconcile.CategoryTotals
	for rows.Next() {
		var (
			t    reconcile.CategoryTotals
			cols [4]string
			mode string
		)
		err := rows.Scan(
			&t.Year, &t.Month, &t.SourceFile, &t.Contractor,
			&cols[0], &cols[1], &cols[2], &cols[3], &mode,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category totals: %w", err)
		}

		for i, dst := range []*decimal.Decimal{
			&t.Excavation, &t.Backfill, &t.ConcreteMR, &t.ConcreteStamped,
		} {
			if *dst, err = decimal.NewFromString(cols[i]); err != nil {
				return nil, fmt.Errorf("corrupt total on %s: %w", t.SourceFile, err)
			}
		}
		t.Mode = reconcile.Mode(mode)
		totals = append(totals, t)
	}

	return totals, rows.Err()
}

// Reset clears all tables. For tests.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{
		"flagged_records", "category_totals",
		"reference_prices", "reference_price_log",
	} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}
