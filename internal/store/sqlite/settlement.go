package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// SettlementStore implements domain.SettlementStore.
type SettlementStore struct {
	db *DB
}

// NewSettlementStore creates a SettlementStore over db.
func NewSettlementStore(db *DB) *SettlementStore {
	return &SettlementStore{db: db}
}

// Put upserts the record for rec.Slug.
func (s *SettlementStore) Put(ctx context.Context, rec domain.SettlementRecord) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO settlement_records (slug, condition_id, captured_at) VALUES (?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET
			condition_id = excluded.condition_id,
			captured_at  = excluded.captured_at`,
		rec.Slug, rec.ConditionID, rec.CapturedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store/sqlite: settlement put %s: %w", rec.Slug, err)
	}
	return nil
}

// List returns every record, oldest capture first.
func (s *SettlementStore) List(ctx context.Context) ([]domain.SettlementRecord, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT slug, condition_id, captured_at FROM settlement_records ORDER BY captured_at, slug`)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: settlement list: %w", err)
	}
	defer rows.Close()

	var out []domain.SettlementRecord
	for rows.Next() {
		var (
			rec domain.SettlementRecord
			ts  int64
		)
		if err := rows.Scan(&rec.Slug, &rec.ConditionID, &ts); err != nil {
			return nil, fmt.Errorf("store/sqlite: settlement scan: %w", err)
		}
		rec.CapturedAt = time.Unix(ts, 0).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store/sqlite: settlement rows: %w", err)
	}
	return out, nil
}

// Delete removes the record for slug. Deleting a missing record is not an
// error.
func (s *SettlementStore) Delete(ctx context.Context, slug string) error {
	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM settlement_records WHERE slug = ?`, slug); err != nil {
		return fmt.Errorf("store/sqlite: settlement delete %s: %w", slug, err)
	}
	return nil
}

var _ domain.SettlementStore = (*SettlementStore)(nil)
