package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// LedgerStore implements domain.OrderLedger with one row per (market, id).
type LedgerStore struct {
	db  *DB
	now func() time.Time
}

// NewLedgerStore creates a LedgerStore over db.
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db, now: time.Now}
}

// Append inserts the ids that are not yet recorded for market inside one
// transaction, so readers see all of them or none.
func (s *LedgerStore) Append(ctx context.Context, market string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store/sqlite: ledger append: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO ledger_orders (market, order_id, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("store/sqlite: ledger append: prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now().Unix()
	added := 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		res, err := stmt.ExecContext(ctx, market, id, now)
		if err != nil {
			return 0, fmt.Errorf("store/sqlite: ledger append %s: %w", market, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("store/sqlite: ledger append: rows affected: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store/sqlite: ledger append: commit: %w", err)
	}
	return added, nil
}

// Load returns market's ids in insertion order. An unknown market is empty.
func (s *LedgerStore) Load(ctx context.Context, market string) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT order_id FROM ledger_orders WHERE market = ? ORDER BY created_at, rowid`, market)
}

// LoadAll returns every id across every market.
func (s *LedgerStore) LoadAll(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT DISTINCT order_id FROM ledger_orders ORDER BY order_id`)
}

// Markets returns the slugs of every market with at least one id.
func (s *LedgerStore) Markets(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx,
		`SELECT DISTINCT market FROM ledger_orders ORDER BY market`)
}

func (s *LedgerStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: ledger query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("store/sqlite: ledger scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: ledger rows: %w", err)
	}
	return out, nil
}

var _ domain.OrderLedger = (*LedgerStore)(nil)
