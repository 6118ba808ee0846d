package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sieve/internal/config"
	"sieve/internal/queue"
	"sieve/internal/validation"
)

var titleCaser = cases.Title(language.English)

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func formatToolStatus(status queue.ToolStatus) string {
	if status == queue.ToolNone {
		return "-"
	}
	return formatStatusLabel(string(status))
}

func formatDisplayTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return humanize.Time(ts)
}

// failureReason renders the kind, message and offending members of a failed item.
func failureReason(item *queue.Item) string {
	if item == nil || item.Status != queue.StatusFailed {
		return ""
	}
	reason := item.ErrorKind
	if msg := strings.TrimSpace(item.ErrorMessage); msg != "" {
		reason = fmt.Sprintf("%s: %s", reason, msg)
	}
	if len(item.FailedMembers) > 0 {
		reason = fmt.Sprintf("%s [%s]", reason, strings.Join(item.FailedMembers, ", "))
	}
	return reason
}

func buildQueueListRows(items []*queue.Item) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			item.RunID,
			formatStatusLabel(string(item.Status)),
			formatToolStatus(item.ToolStatus),
			formatDisplayTime(item.UpdatedAt),
			failureReason(item),
		})
	}
	return rows
}

func renderQueueList(items []*queue.Item) string {
	return renderTable(
		[]string{"ID", "Run", "Status", "Tool", "Updated", "Reason"},
		buildQueueListRows(items),
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func renderRunSummary(cfg *config.Config, items []*queue.Item) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		result := "failed"
		switch {
		case succeeded(cfg, item):
			result = "ok"
		case item.Status != queue.StatusFailed:
			result = formatStatusLabel(string(item.Status))
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", item.ID),
			item.RunID,
			result,
			formatToolStatus(item.ToolStatus),
			failureReason(item),
		})
	}
	return renderTable(
		[]string{"ID", "Run", "Result", "Tool", "Reason"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func buildQueueStatusRows(stats map[queue.Status]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), fmt.Sprintf("%d", count)})
	}
	return rows
}

func renderValidationRecords(records []validation.Record) string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.Member,
			record.Category.String(),
			formatStatusLabel(string(record.Outcome)),
			humanize.IBytes(uint64(record.Bytes)),
			yesNo(record.Reused),
		})
	}
	return renderTable(
		[]string{"Member", "Category", "Outcome", "Bytes", "Reused"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderQueueRecords(records []queue.Record) string {
	rows := make([][]string, 0, len(records))
	for _, record := range records {
		rows = append(rows, []string{
			record.Member,
			record.Category,
			formatStatusLabel(record.Outcome),
			humanize.IBytes(uint64(record.Bytes)),
			yesNo(record.Reused),
		})
	}
	return renderTable(
		[]string{"Member", "Category", "Outcome", "Bytes", "Reused"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}
