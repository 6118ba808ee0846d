package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sieve/internal/logging"
	"sieve/internal/queue"
	"sieve/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var validationWorkers int
	var toolWorkers int
	var failOnError bool

	cmd := &cobra.Command{
		Use:   "run [input-list]",
		Short: "Enqueue an input list and process the queue until idle",
		Long: "Loads the input list (argument or input.list_path), enqueues each archive in list order, " +
			"and runs the validation and tool lanes until no work remains. Without a list the existing " +
			"queue is processed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if validationWorkers > 0 {
				cfg.Workflow.ValidationWorkers = validationWorkers
			}
			if toolWorkers > 0 {
				cfg.Workflow.ToolWorkers = toolWorkers
			}
			listPath, err := resolveListPath(cfg, args)
			if err != nil {
				return err
			}

			lock, err := acquireProcessLock(cfg)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(commandScope(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()
			logger = logging.WithContext(runCtx, logger)

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			var ids []int64
			if listPath != "" {
				report, err := enqueueList(runCtx, cfg, store, listPath, logger)
				if err != nil {
					return err
				}
				ids = report.IDs
				logger.Info("input list loaded",
					logging.String("list", listPath),
					logging.Int("added", report.Added),
					logging.Int("existing", report.Existing),
					logging.String(logging.FieldEventType, "input_loaded"),
				)
			}

			set, err := buildStageSet(cfg, store, logger)
			if err != nil {
				return err
			}
			mgr := workflow.NewManager(cfg, store, logger)
			mgr.ConfigureStages(set)
			if err := mgr.Start(runCtx); err != nil {
				return err
			}
			waitErr := mgr.WaitIdle(runCtx)
			mgr.Stop()

			// The summary is printed even after an interrupt.
			summaryCtx := context.WithoutCancel(runCtx)
			items, err := summaryItems(summaryCtx, store, ids)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderRunSummary(cfg, items))
			ok, failed := 0, 0
			for _, item := range items {
				switch {
				case succeeded(cfg, item):
					ok++
				case item.Status == queue.StatusFailed:
					failed++
				}
			}
			fmt.Fprintf(out, "%d succeeded, %d failed, %d total\n", ok, failed, len(items))

			if waitErr != nil {
				return waitErr
			}
			if failOnError && failed > 0 {
				return fmt.Errorf("%d item(s) failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&validationWorkers, "validation-workers", 0, "Override workflow.validation_workers")
	cmd.Flags().IntVar(&toolWorkers, "tool-workers", 0, "Override workflow.tool_workers")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when any item failed")
	return cmd
}

// summaryItems returns the items created from the list, or the whole queue
// when no list was given.
func summaryItems(ctx context.Context, store *queue.Store, ids []int64) ([]*queue.Item, error) {
	if len(ids) == 0 {
		return store.List(ctx)
	}
	items := make([]*queue.Item, 0, len(ids))
	for _, id := range ids {
		item, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if item != nil {
			items = append(items, item)
		}
	}
	return items, nil
}

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue [input-list]",
		Short: "Add the archives of an input list to the queue without processing",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			listPath, err := resolveListPath(cfg, args)
			if err != nil {
				return err
			}
			if listPath == "" {
				return fmt.Errorf("no input list given and input.list_path is not set")
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withLockedStore(func(store *queue.Store) error {
				report, err := enqueueList(commandScope(cmd.Context()), cfg, store, listPath, logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d items (%d already queued)\n", report.Added, report.Existing)
				return nil
			})
		},
	}
}
