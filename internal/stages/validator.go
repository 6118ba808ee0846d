package stages

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"sieve/internal/config"
	"sieve/internal/logging"
	"sieve/internal/preflight"
	"sieve/internal/queue"
	"sieve/internal/services"
	"sieve/internal/stage"
	"sieve/internal/staging"
	"sieve/internal/validation"
)

// Validator verifies an inspected archive, publishes its metadata and records
// the hand-off.
type Validator struct {
	cfg       *config.Config
	store     *queue.Store
	validator *validation.Validator
	logger    *slog.Logger
}

// NewValidator constructs the validator stage handler.
func NewValidator(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Validator, error) {
	opts, err := validation.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Validator{
		cfg:       cfg,
		store:     store,
		validator: validation.New(opts, logger),
		logger:    logging.NewComponentLogger(logger, "validator"),
	}, nil
}

// MetadataDir is where an item's normalized metadata is published.
func MetadataDir(cfg *config.Config, runID string) string {
	return filepath.Join(cfg.Paths.OutputDir, runID, "metadata")
}

// Execute validates the archive in the item's own work directory.
func (v *Validator) Execute(ctx context.Context, item queue.Item) (queue.Item, error) {
	logger := logging.WithContext(ctx, v.logger)
	handle, err := DecodeHandle(item)
	if err != nil {
		return item, err
	}

	work, err := staging.Acquire(v.cfg.Paths.StagingDir, item.RunID)
	if err != nil {
		return item, err
	}
	released := false
	defer func() {
		if released {
			return
		}
		if err := work.Release(); err != nil {
			logger.Warn("failed to release work dir lock", logging.Error(err))
		}
	}()

	result, validateErr := v.validator.Validate(ctx, handle, work.Path)
	if len(result.Records) > 0 {
		if err := v.store.SaveRecords(context.WithoutCancel(ctx), item.ID, queueRecords(result.Records)); err != nil {
			logger.Warn("failed to persist validation records", logging.Error(err))
		}
	}
	if result.AssayID != "" {
		item.AssayID = result.AssayID
	}
	counts := result.Counts()
	item.ProgressMessage = fmt.Sprintf("%d passed, %d failed, %d missing, %d skipped",
		counts[validation.Passed], counts[validation.Failed], counts[validation.Missing], counts[validation.Skipped])
	if validateErr != nil {
		return item, validateErr
	}

	dest := MetadataDir(v.cfg, item.RunID)
	published, err := v.validator.Publish(result, dest)
	if err != nil {
		return item, err
	}
	logger.Info("metadata published",
		logging.String(logging.FieldEventType, "metadata_published"),
		logging.String("destination", dest),
		logging.Strings("files", published),
	)

	item, err = item.WithHandoff(queue.Handoff{
		RunID:       item.RunID,
		AssayID:     item.AssayID,
		Archive:     handle.Path,
		BulkMembers: result.BulkMembers,
		MetadataDir: dest,
	})
	if err != nil {
		return item, services.Wrap(services.ErrTransient, "validator", "encode hand-off", "Failed to record hand-off", err)
	}
	if v.cfg.ToolEnabled() {
		item.ToolStatus = queue.ToolQueued
	}

	if v.cfg.Workflow.CleanupStaging {
		released = true
		if err := work.Remove(); err != nil {
			logger.Warn("failed to remove work dir", logging.Error(err), logging.String("path", work.Path))
		}
	}
	return item, nil
}

// HealthCheck reports whether the staging directory is usable.
func (v *Validator) HealthCheck(context.Context) stage.Health {
	check := preflight.CheckDirectoryAccess("staging", v.cfg.Paths.StagingDir)
	if !check.Passed {
		return stage.Unhealthy("validator", check.Detail)
	}
	return stage.Healthy("validator")
}

func queueRecords(records []validation.Record) []queue.Record {
	out := make([]queue.Record, 0, len(records))
	for _, record := range records {
		out = append(out, queue.Record{
			Member:   record.Member,
			Category: record.Category.String(),
			Expected: record.Expected,
			Computed: record.Computed,
			Outcome:  string(record.Outcome),
			Reused:   record.Reused,
			Bytes:    record.Bytes,
		})
	}
	return out
}
