package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"sieve/internal/archive"
	"sieve/internal/config"
	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/services"
	"sieve/internal/stage"
)

// Inspector lists archive members and records the archive handle on the item.
type Inspector struct {
	inspector *archive.Inspector
	logger    *slog.Logger
}

// NewInspector constructs the inspector stage handler.
func NewInspector(cfg *config.Config, logger *slog.Logger) *Inspector {
	return &Inspector{
		inspector: archive.NewInspector(cfg.Archive.TransientSuffixes),
		logger:    logging.NewComponentLogger(logger, "inspector"),
	}
}

// Execute inspects the item's archive without extracting it.
func (i *Inspector) Execute(ctx context.Context, item queue.Item) (queue.Item, error) {
	logger := logging.WithContext(ctx, i.logger)
	handle, err := i.inspector.Inspect(ctx, item.SourcePath)
	if err != nil {
		return item, err
	}
	encoded, err := json.Marshal(handle)
	if err != nil {
		return item, services.Wrap(services.ErrTransient, "inspector", "encode handle", "Failed to encode archive handle", err)
	}
	item.ArchiveJSON = string(encoded)
	item.AssayID = handle.RunID
	item.ProgressMessage = fmt.Sprintf("%d members, %s", len(handle.Members), humanize.Bytes(uint64(handle.TotalSize())))

	logger.Info("archive inspected",
		logging.String(logging.FieldEventType, "archive_inspected"),
		logging.String("assay_id", handle.RunID),
		logging.String("codec", string(handle.Codec)),
		logging.Int("members", len(handle.Members)),
		logging.Int("depth", handle.Depth),
		logging.Int("ignored", handle.Ignored),
		logging.String("size", humanize.Bytes(uint64(handle.TotalSize()))),
	)
	return item, nil
}

// HealthCheck reports readiness.
func (i *Inspector) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("inspector")
}

// DecodeHandle reads the archive handle recorded by the inspector.
func DecodeHandle(item queue.Item) (archive.Handle, error) {
	var handle archive.Handle
	if item.ArchiveJSON == "" {
		return handle, services.Wrap(services.ErrTransient, "validator", "decode handle", "Item has no archive handle; inspect it again", nil)
	}
	if err := json.Unmarshal([]byte(item.ArchiveJSON), &handle); err != nil {
		return handle, services.Wrap(services.ErrTransient, "validator", "decode handle", "Archive handle is corrupt; inspect it again", err)
	}
	return handle, nil
}
