package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"sieve/internal/archive"
	"sieve/internal/config"
	"sieve/internal/manifest"
	"sieve/internal/staging"
	"sieve/internal/validation"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <archive>",
		Short: "List archive members and the inferred run layout without extracting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			location, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			inspector := archive.NewInspector(cfg.Archive.TransientSuffixes)
			handle, err := inspector.Inspect(commandScope(cmd.Context()), location)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Archive: %s\n", handle.Path)
			fmt.Fprintf(out, "Codec:   %s\n", handle.Codec)
			fmt.Fprintf(out, "Run ID:  %s\n", handle.RunID)
			fmt.Fprintf(out, "Depth:   %d\n", handle.Depth)
			fmt.Fprintf(out, "Members: %d (%s, %d transient ignored)\n",
				len(handle.Members), humanize.IBytes(uint64(handle.TotalSize())), handle.Ignored)

			classifier := manifest.NewClassifier(cfg.Archive.BulkSuffixes)
			rows := make([][]string, 0, len(handle.Members))
			for _, member := range handle.Members {
				role := classifier.Classify(member.Name).String()
				if manifest.IsManifestName(member.Name, cfg.Manifest.Suffixes) {
					role = "manifest"
				}
				rows = append(rows, []string{member.Name, humanize.IBytes(uint64(member.Size)), role})
			}
			fmt.Fprint(out, renderTable([]string{"Member", "Size", "Category"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))
			return nil
		},
	}
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var publishDir string

	cmd := &cobra.Command{
		Use:   "verify <archive>",
		Short: "Validate one archive against its manifest outside the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			location, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			runCtx := commandScope(cmd.Context())

			handle, err := archive.NewInspector(cfg.Archive.TransientSuffixes).Inspect(runCtx, location)
			if err != nil {
				return err
			}
			opts, err := validation.OptionsFromConfig(cfg)
			if err != nil {
				return err
			}
			validator := validation.New(opts, logger)

			work, err := staging.Acquire(cfg.Paths.StagingDir, handle.RunID)
			if err != nil {
				return err
			}
			defer work.Release()

			result, validateErr := validator.Validate(runCtx, handle, work.Path)
			out := cmd.OutOrStdout()
			if len(result.Records) > 0 {
				fmt.Fprint(out, renderValidationRecords(result.Records))
			}
			if len(result.MissingRequired) > 0 {
				fmt.Fprintf(out, "Missing required files: %s\n", strings.Join(result.MissingRequired, ", "))
			}
			if validateErr != nil {
				return validateErr
			}
			if !result.Passed() {
				return errors.New("validation failed")
			}
			fmt.Fprintf(out, "Validated %s (%d entries)\n", handle.RunID, len(result.Records))

			if dest := strings.TrimSpace(publishDir); dest != "" {
				dest, err = config.ExpandPath(dest)
				if err != nil {
					return err
				}
				published, err := validator.Publish(result, dest)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Published %d metadata files to %s\n", len(published), dest)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&publishDir, "publish", "", "Copy normalized metadata files to this directory after a successful validation")
	return cmd
}
