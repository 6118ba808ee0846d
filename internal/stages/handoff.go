package stages

import (
	"context"
	"log/slog"

	"sieve/internal/config"
	"sieve/internal/logging"
	"sieve/internal/preflight"
	"sieve/internal/queue"
	"sieve/internal/services"
	"sieve/internal/services/tool"
	"sieve/internal/stage"
)

// Invoker runs the external tool for one hand-off.
type Invoker interface {
	Invoke(ctx context.Context, req tool.Request, onOutput func(string)) error
}

// Handoff passes validated archives to the external tool.
type Handoff struct {
	store   *queue.Store
	invoker Invoker
	command string
	logger  *slog.Logger
}

// NewHandoff constructs the hand-off stage from configuration.
func NewHandoff(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Handoff, error) {
	client, err := tool.New(cfg.Tool.Command, cfg.Tool.Args, cfg.Tool.TimeoutSeconds)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "handoff", "configure tool", "", err)
	}
	return NewHandoffWithInvoker(store, client, client.Command(), logger), nil
}

// NewHandoffWithInvoker allows injecting the tool runner (used in tests).
func NewHandoffWithInvoker(store *queue.Store, invoker Invoker, command string, logger *slog.Logger) *Handoff {
	return &Handoff{
		store:   store,
		invoker: invoker,
		command: command,
		logger:  logging.NewComponentLogger(logger, "handoff"),
	}
}

// Execute runs the tool against the item's recorded hand-off.
func (h *Handoff) Execute(ctx context.Context, item queue.Item) (queue.Item, error) {
	logger := logging.WithContext(ctx, h.logger)
	handoff, err := item.Handoff()
	if err != nil {
		return item, services.Wrap(services.ErrTransient, "handoff", "decode hand-off", "Item has no hand-off; validate it again", err)
	}

	item.ToolStatus = queue.ToolRunning
	if err := h.store.Update(ctx, &item); err != nil {
		logger.Warn("failed to persist tool status", logging.Error(err))
	}

	logger.Info("external tool started",
		logging.String(logging.FieldEventType, "tool_start"),
		logging.String("command", h.command),
		logging.String("archive", handoff.Archive),
		logging.Strings("bulk_members", handoff.BulkMembers),
	)
	err = h.invoker.Invoke(ctx, tool.Request{
		RunID:       handoff.RunID,
		AssayID:     handoff.AssayID,
		Archive:     handoff.Archive,
		BulkMembers: handoff.BulkMembers,
		MetadataDir: handoff.MetadataDir,
	}, func(line string) {
		logger.Debug("tool output", logging.String("line", line))
	})
	if err != nil {
		return item, err
	}

	item.ToolStatus = queue.ToolSucceeded
	item.ProgressMessage = "Tool completed"
	logger.Info("external tool completed", logging.String(logging.FieldEventType, "tool_complete"))
	return item, nil
}

// HealthCheck reports whether the tool command resolves.
func (h *Handoff) HealthCheck(context.Context) stage.Health {
	check := preflight.CheckBinary("tool", h.command)
	if !check.Passed {
		return stage.Unhealthy("handoff", check.Detail)
	}
	return stage.Healthy("handoff")
}
