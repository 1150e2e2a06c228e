package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"subtitler/internal/staging"
)

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var maxAge time.Duration
	var list bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove abandoned run directories from paths.work_dir",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			out := cmd.OutOrStdout()

			if list {
				dirs, err := staging.ListDirectories(cfg.Paths.WorkDir)
				if err != nil {
					return err
				}
				if len(dirs) == 0 {
					fmt.Fprintln(out, "No run directories")
					return nil
				}
				rows := make([][]string, 0, len(dirs))
				for _, dir := range dirs {
					rows = append(rows, []string{
						dir.Name,
						dir.ModTime.Local().Format("2006-01-02 15:04"),
						humanBytes(dir.Size),
						yesNo(dir.Locked),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Modified", "Size", "Active"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			}

			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			result := staging.CleanStale(cmd.Context(), cfg.Paths.WorkDir, maxAge, logger)
			fmt.Fprintf(out, "Removed %d run directories", len(result.Removed))
			if len(result.Skipped) > 0 {
				fmt.Fprintf(out, ", skipped %d active", len(result.Skipped))
			}
			fmt.Fprintln(out)
			for _, failure := range result.Errors {
				fmt.Fprintf(out, "  failed: %s: %v\n", failure.Path, failure.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("cleanup failed for %d directories", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 24*time.Hour, "Remove run directories older than this")
	cmd.Flags().BoolVar(&list, "list", false, "List run directories without removing anything")
	return cmd
}
