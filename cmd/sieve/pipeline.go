package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"sieve/internal/config"
	"sieve/internal/inputlist"
	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/stages"
	"sieve/internal/workflow"
)

type enqueueReport struct {
	IDs      []int64
	Added    int
	Existing int
}

// resolveListPath prefers an explicit argument over the configured list.
func resolveListPath(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return config.ExpandPath(strings.TrimSpace(args[0]))
	}
	return cfg.Input.ListPath, nil
}

// enqueueList loads listPath and adds every entry to the queue in list order.
// Entries whose source is already queued keep their existing item.
func enqueueList(ctx context.Context, cfg *config.Config, store *queue.Store, listPath string, logger *slog.Logger) (enqueueReport, error) {
	var report enqueueReport
	entries, err := inputlist.Load(listPath, cfg.Input.ArchiveSuffixes)
	if err != nil {
		return report, err
	}
	for _, entry := range entries {
		item, created, err := store.Enqueue(ctx, entry.RunID, entry.Location)
		if err != nil {
			return report, fmt.Errorf("enqueue %s: %w", entry.Location, err)
		}
		report.IDs = append(report.IDs, item.ID)
		if created {
			report.Added++
			logger.Info("item enqueued",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String(logging.FieldRunID, item.RunID),
				logging.String("source", item.SourcePath),
				logging.String(logging.FieldEventType, "item_enqueued"),
			)
			continue
		}
		report.Existing++
		logger.Info("item already queued",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldRunID, item.RunID),
			logging.String("status", string(item.Status)),
			logging.String(logging.FieldEventType, "item_existing"),
		)
	}
	return report, nil
}

// buildStageSet wires the concrete stage handlers. The hand-off stage is only
// registered when a tool command is configured.
func buildStageSet(cfg *config.Config, store *queue.Store, logger *slog.Logger) (workflow.StageSet, error) {
	validator, err := stages.NewValidator(cfg, store, logger)
	if err != nil {
		return workflow.StageSet{}, err
	}
	set := workflow.StageSet{
		Inspector: stages.NewInspector(cfg, logger),
		Validator: validator,
	}
	if cfg.ToolEnabled() {
		handoff, err := stages.NewHandoff(cfg, store, logger)
		if err != nil {
			return workflow.StageSet{}, err
		}
		set.Handoff = handoff
	}
	return set, nil
}

// succeeded reports whether an item reached the end of the configured pipeline.
func succeeded(cfg *config.Config, item *queue.Item) bool {
	if item == nil {
		return false
	}
	if cfg.ToolEnabled() {
		return item.Status == queue.StatusCompleted
	}
	return item.Status == queue.StatusValidated || item.Status == queue.StatusCompleted
}
