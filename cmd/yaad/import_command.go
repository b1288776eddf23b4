package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"yaad/internal/imports"
	"yaad/internal/library"
	"yaad/internal/media"
)

type importFlags struct {
	user         int64
	skipExisting bool
	force        bool
}

func (f *importFlags) register(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&f.user, "user", 1, "Library user id")
	cmd.Flags().BoolVar(&f.skipExisting, "skip-existing", true, "Leave rows that already exist untouched")
	cmd.Flags().BoolVar(&f.force, "force", false, "Overwrite catalog fields on existing rows")
}

func (f *importFlags) options() library.UpsertOptions {
	return library.UpsertOptions{SkipExisting: f.skipExisting && !f.force, ForceOverwrite: f.force}
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a media history export",
	}
	importCmd.AddCommand(newImportLetterboxdCommand(ctx))
	importCmd.AddCommand(newImportNotionCommand(ctx))
	return importCmd
}

func newImportLetterboxdCommand(ctx *commandContext) *cobra.Command {
	var flags importFlags
	var file string

	cmd := &cobra.Command{
		Use:   "letterboxd",
		Short: "Import a Letterboxd diary or ratings CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(true)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			reader, closeFn, err := openInput(file)
			if err != nil {
				return err
			}
			defer closeFn()

			driver := imports.NewLetterboxd(pipeline.cfg.Import.PageCeiling, pipeline.limiter, pipeline.logger)
			entries, err := driver.ParseDiaryCSV(reader)
			if err != nil {
				return err
			}
			return runBatch(cmd, pipeline, flags, entries, nil)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the CSV export (or - for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newImportNotionCommand(ctx *commandContext) *cobra.Command {
	var flags importFlags
	var file string

	cmd := &cobra.Command{
		Use:   "notion",
		Short: "Import a Notion database CSV export",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := ctx.openPipeline(true)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			reader, closeFn, err := openInput(file)
			if err != nil {
				return err
			}
			defer closeFn()

			driver := imports.NewNotion(pipeline.logger)
			report, err := driver.ParseCSV(reader)
			if err != nil {
				return err
			}
			return runBatch(cmd, pipeline, flags, report.Entries, report.Skipped)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the CSV export (or - for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// runBatch drives parsed entries through the pipeline with per-item progress
// lines, then prints the summary table. Rows the parser set aside count as
// skipped.
func runBatch(cmd *cobra.Command, pipeline *pipeline, flags importFlags, entries []media.RawEntry, parserSkips []string) error {
	out := cmd.OutOrStdout()

	runner := pipeline.runner(imports.WithProgress(func(p imports.Progress) {
		if p.Err != nil {
			fmt.Fprintf(out, "[%d/%d] %s: %v\n", p.Index+1, p.Total, p.Name, p.Err)
			return
		}
		fmt.Fprintf(out, "[%d/%d] %s: %s\n", p.Index+1, p.Total, p.Name, p.Status)
	}))

	result, err := runner.Run(cmd.Context(), flags.user, entries, flags.options())
	result.Skipped += len(parserSkips)
	for _, reason := range parserSkips {
		fmt.Fprintf(out, "set aside: %s\n", reason)
	}
	printResult(out, result)
	return err
}

func printResult(out io.Writer, result media.ImportResult) {
	fmt.Fprintln(out, resultTable(result))
	if len(result.Errors) > 0 {
		fmt.Fprintln(out, "Failures:")
		for _, message := range result.Errors {
			fmt.Fprintf(out, "  %s\n", message)
		}
		if truncated := result.TruncatedErrors(); truncated > 0 {
			fmt.Fprintf(out, "  ... and %d more\n", truncated)
		}
	}
}

// openInput opens the named file, or stdin for "-".
func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open export: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
