package queue

import (
	"context"
	"fmt"
)

// Record is the persisted outcome of one manifest entry.
type Record struct {
	Member   string
	Category string
	Expected string
	Computed string
	Outcome  string
	Reused   bool
	Bytes    int64
}

// SaveRecords replaces the validation records of an item.
func (s *Store) SaveRecords(ctx context.Context, itemID int64, records []Record) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin records tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM validation_records WHERE item_id = ?`, itemID); err != nil {
			return fmt.Errorf("delete records: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO validation_records (item_id, position, member, category, expected, computed, outcome, reused, bytes)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare records insert: %w", err)
		}
		defer stmt.Close()
		for i, record := range records {
			if _, err := stmt.ExecContext(ctx,
				itemID, i, record.Member, record.Category,
				nullableString(record.Expected), nullableString(record.Computed),
				record.Outcome, boolToInt(record.Reused), record.Bytes,
			); err != nil {
				return fmt.Errorf("insert record %s: %w", record.Member, err)
			}
		}
		return tx.Commit()
	})
}

// Records returns an item's validation records in manifest order.
func (s *Store) Records(ctx context.Context, itemID int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member, category, COALESCE(expected, ''), COALESCE(computed, ''), outcome, reused, bytes
         FROM validation_records WHERE item_id = ? ORDER BY position`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			record Record
			reused int
		)
		if err := rows.Scan(&record.Member, &record.Category, &record.Expected, &record.Computed, &record.Outcome, &reused, &record.Bytes); err != nil {
			return nil, err
		}
		record.Reused = reused != 0
		records = append(records, record)
	}
	return records, rows.Err()
}
