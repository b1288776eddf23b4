package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"yaad/internal/library"
	"yaad/internal/media"
)

func newRebuildCommand(ctx *commandContext) *cobra.Command {
	var user int64
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Re-enrich library rows with missing metadata",
		Long: "Scans the library for rows without a cover, description or catalog id,\n" +
			"re-resolves each against the catalogs with fuzzy title matching, and merges\n" +
			"the results. Rows that turn out to duplicate an existing catalog id are\n" +
			"folded into the row that owns it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(!dryRun)
			if err != nil {
				return err
			}
			defer pipeline.Close()
			out := cmd.OutOrStdout()

			items, err := pipeline.store.ListIncomplete(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "Nothing to rebuild")
				return nil
			}
			fmt.Fprintf(out, "%d incomplete rows\n", len(items))

			var result media.ImportResult
			for index, item := range items {
				if err := cmd.Context().Err(); err != nil {
					return err
				}

				candidate, err := pipeline.engine.ResolveFuzzy(cmd.Context(), item.Title, item.Year, item.Type)
				if err != nil {
					result.RecordError(item.Title, err)
					fmt.Fprintf(out, "[%d/%d] %s: %v\n", index+1, len(items), item.Title, err)
					continue
				}
				if dryRun {
					fmt.Fprintf(out, "[%d/%d] %s -> %s (%s)\n", index+1, len(items),
						item.Title, candidate.DisplayTitle(), candidate.ExternalID)
					result.Skipped++
					continue
				}

				outcome, err := pipeline.service.ApplyRebuild(cmd.Context(), item, candidate)
				if err != nil {
					result.RecordError(item.Title, err)
					continue
				}
				switch outcome.Status {
				case library.StatusUpdated:
					result.Updated++
				default:
					result.Skipped++
				}
				fmt.Fprintf(out, "[%d/%d] %s: %s\n", index+1, len(items), item.Title, outcome.Status)
			}

			printResult(out, result)
			return nil
		},
	}
	cmd.Flags().Int64Var(&user, "user", 1, "Library user id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Resolve without writing anything")
	return cmd
}
