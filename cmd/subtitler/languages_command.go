package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subtitler/internal/language"
)

func newLanguagesCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List the supported translation target languages",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			options := language.NewSupported(cfg.Translation.Languages).Options()
			if jsonOutput {
				return writeJSON(cmd, options)
			}
			rows := make([][]string, 0, len(options))
			for _, opt := range options {
				rows = append(rows, []string{opt.Code, opt.Name, opt.NativeName})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Language", "Native"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print languages as JSON")
	return cmd
}
