package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateRunID reports a run id already queued for a different source.
// Both items would share the same staging and output directories.
var ErrDuplicateRunID = errors.New("run id already queued for another source")

// Enqueue inserts a pending item for source. A source that is already queued
// returns the existing item with created=false; a run id queued under another
// source is rejected with ErrDuplicateRunID.
func (s *Store) Enqueue(ctx context.Context, runID, source string) (*Item, bool, error) {
	runID = strings.TrimSpace(runID)
	source = strings.TrimSpace(source)
	if runID == "" || source == "" {
		return nil, false, errors.New("enqueue requires run id and source")
	}
	if existing, err := s.FindBySource(ctx, source); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}
	if existing, err := s.FindByRunID(ctx, runID); err != nil {
		return nil, false, err
	} else if existing != nil {
		return nil, false, fmt.Errorf("%w: run id %q is item %d (%s)", ErrDuplicateRunID, runID, existing.ID, existing.SourcePath)
	}

	timestamp := nowString()
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO queue_items (
            run_id, source_path, status, progress_stage, progress_message,
            progress_percent, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		source,
		StatusPending,
		"Queued",
		nil,
		0.0,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	item, err := s.GetByID(ctx, id)
	return item, err == nil && item != nil, err
}

// GetByID fetches an item by identifier. A missing item yields nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// FindBySource returns the item enqueued for source, if any.
func (s *Store) FindBySource(ctx context.Context, source string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE source_path = ?`, source)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source: %w", err)
	}
	return item, nil
}

// FindByRunID returns the oldest item carrying runID, if any.
func (s *Store) FindByRunID(ctx context.Context, runID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE run_id = ? ORDER BY id LIMIT 1`, runID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by run id: %w", err)
	}
	return item, nil
}

// Update persists every mutable field of item.
func (s *Store) Update(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET assay_id = ?, status = ?, tool_status = ?, error_kind = ?, error_message = ?,
             failed_members = ?, archive_json = ?, handoff_json = ?, progress_stage = ?,
             progress_message = ?, progress_percent = ?, updated_at = ?, last_heartbeat = ?
         WHERE id = ?`,
		nullableString(item.AssayID),
		item.Status,
		nullableString(string(item.ToolStatus)),
		nullableString(item.ErrorKind),
		nullableString(item.ErrorMessage),
		nullableJSONList(item.FailedMembers),
		nullableString(item.ArchiveJSON),
		nullableString(item.HandoffJSON),
		nullableString(item.ProgressStage),
		nullableString(item.ProgressMessage),
		item.ProgressPercent,
		item.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(item.LastHeartbeat),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// List returns items filtered by status (all items when none given) in
// enqueue order.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		args = statusArgs(statuses)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	return scanItems(rows)
}

// Claim atomically moves the oldest item in status from to status to and
// returns it. No claimable item yields nil, nil.
func (s *Store) Claim(ctx context.Context, from, to Status, progressStage string) (*Item, error) {
	ctx = ensureContext(ctx)
	timestamp := nowString()
	var item *Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(
			ctx,
			`UPDATE queue_items
             SET status = ?, progress_stage = ?, progress_message = NULL, progress_percent = 0,
                 error_kind = NULL, error_message = NULL, failed_members = NULL,
                 last_heartbeat = ?, updated_at = ?
             WHERE id = (SELECT id FROM queue_items WHERE status = ? ORDER BY id LIMIT 1)
             RETURNING `+itemColumns,
			to,
			nullableString(progressStage),
			timestamp,
			timestamp,
			from,
		)
		claimed, scanErr := scanItem(row)
		if scanErr != nil {
			return scanErr
		}
		item = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim item: %w", err)
	}
	return item, nil
}

// Rollback returns an item from a processing status to the start status of
// its stage. It is a no-op when the item has already moved on.
func (s *Store) Rollback(ctx context.Context, id int64, from, to Status) (bool, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE queue_items
         SET status = ?, progress_stage = 'Interrupted', progress_message = NULL,
             progress_percent = 0, last_heartbeat = NULL, updated_at = ?,
             tool_status = CASE WHEN tool_status = ? THEN ? ELSE tool_status END
         WHERE id = ? AND status = ?`,
		to,
		nowString(),
		ToolRunning, ToolQueued,
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("rollback item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Count returns the number of items in any of statuses.
func (s *Store) Count(ctx context.Context, statuses ...Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var count int
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM queue_items WHERE status IN (`+makePlaceholders(len(statuses))+`)`,
		statusArgs(statuses)...,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

// UpdateHeartbeat records liveness for an in-flight item.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	timestamp := nowString()
	if _, err := s.execWithRetry(ctx,
		`UPDATE queue_items SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		timestamp, timestamp, id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// UpdateProgress records progress for an in-flight item without touching its
// status.
func (s *Store) UpdateProgress(ctx context.Context, id int64, stage, message string, percent float64) error {
	timestamp := nowString()
	if _, err := s.execWithRetry(ctx,
		`UPDATE queue_items
         SET progress_stage = ?, progress_message = ?, progress_percent = ?, last_heartbeat = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(stage), nullableString(message), percent, timestamp, timestamp, id,
	); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}
