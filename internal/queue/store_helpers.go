package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const itemColumns = "id, run_id, source_path, assay_id, status, tool_status, error_kind, error_message, failed_members, archive_json, handoff_json, progress_stage, progress_message, progress_percent, created_at, updated_at, last_heartbeat"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id               int64
		runID            string
		sourcePath       string
		assayID          sql.NullString
		statusStr        string
		toolStatus       sql.NullString
		errorKind        sql.NullString
		errorMessage     sql.NullString
		failedMembers    sql.NullString
		archiveJSON      sql.NullString
		handoffJSON      sql.NullString
		progressStage    sql.NullString
		progressMessage  sql.NullString
		progressPercent  sql.NullFloat64
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
		lastHeartbeatRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&runID,
		&sourcePath,
		&assayID,
		&statusStr,
		&toolStatus,
		&errorKind,
		&errorMessage,
		&failedMembers,
		&archiveJSON,
		&handoffJSON,
		&progressStage,
		&progressMessage,
		&progressPercent,
		&createdRaw,
		&updatedRaw,
		&lastHeartbeatRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		RunID:           runID,
		SourcePath:      sourcePath,
		AssayID:         assayID.String,
		Status:          Status(statusStr),
		ToolStatus:      ToolStatus(toolStatus.String),
		ErrorKind:       errorKind.String,
		ErrorMessage:    errorMessage.String,
		ArchiveJSON:     archiveJSON.String,
		HandoffJSON:     handoffJSON.String,
		ProgressStage:   progressStage.String,
		ProgressMessage: progressMessage.String,
		ProgressPercent: progressPercent.Float64,
	}
	if failedMembers.Valid && failedMembers.String != "" {
		_ = json.Unmarshal([]byte(failedMembers.String), &item.FailedMembers)
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if lastHeartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(lastHeartbeatRaw.String); err == nil {
			item.LastHeartbeat = &heartbeat
		}
	}
	return item, nil
}

func scanItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableJSONList(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
