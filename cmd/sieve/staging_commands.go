package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sieve/internal/queue"
	"sieve/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Manage per-run work directories",
	}

	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))

	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List work directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.ListDirectories(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No staging directories found")
				return nil
			}

			var totalSize int64
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				totalSize += dir.Size
				rows = append(rows, []string{
					dir.Name,
					humanize.Time(dir.ModTime),
					humanize.IBytes(uint64(dir.Size)),
					yesNo(staging.Locked(cfg.Paths.StagingDir, dir.Name)),
				})
			}
			fmt.Fprintf(out, "Staging directory: %s\n", cfg.Paths.StagingDir)
			fmt.Fprint(out, renderTable(
				[]string{"Run", "Modified", "Size", "Locked"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Total: %d directories, %s\n", len(dirs), humanize.IBytes(uint64(totalSize)))
			return nil
		},
	}
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove work directories of runs no longer queued",
		Long: `Remove work directories not associated with any queue item.

With --older-than, every unlocked work directory last modified before the
cutoff is removed regardless of queue status. Locked directories are always kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			return ctx.withLockedStore(func(store *queue.Store) error {
				var result staging.CleanStaleResult
				if olderThan > 0 {
					result = staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, olderThan, logger)
				} else {
					items, err := store.List(cmd.Context())
					if err != nil {
						return err
					}
					active := make(map[string]struct{}, len(items))
					for _, item := range items {
						active[item.RunID] = struct{}{}
					}
					result = staging.CleanOrphaned(cmd.Context(), cfg.Paths.StagingDir, active, logger)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Removed %d staging directories\n", len(result.Removed))
				for _, failure := range result.Errors {
					fmt.Fprintf(out, "Failed to remove %s: %v\n", failure.Path, failure.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove unlocked directories older than this age instead of orphans")
	return cmd
}
