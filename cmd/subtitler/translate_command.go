package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"subtitler/internal/language"
	"subtitler/internal/pipeline"
)

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var lang string
	var outputPath string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "translate <subtitle.srt>",
		Short: "Translate an SRT file block by block, keeping indices and timestamps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := resolveInputFile(args[0], "subtitle")
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			supported := language.NewSupported(cfg.Translation.Languages)
			target, ok := supported.Resolve(lang)
			if !ok {
				return fmt.Errorf("unsupported language %q (supported: %s)", lang, strings.Join(supported.Codes(), ", "))
			}
			output := strings.TrimSpace(outputPath)
			if output == "" {
				output = translatedPath(input, target)
			}

			translation, err := pipeline.NewTranslationFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			progress := newProgressReporter(cmd.ErrOrStderr(), "translating", quiet)
			result, err := translation.TranslateFile(cmd.Context(), input, output, target, progress.Update)
			progress.Finish()
			if err != nil {
				return fmt.Errorf("translation failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Translated subtitles: %s (%s, blocks: %d)\n", output, language.DisplayName(target), result.Total)
			if len(result.Untranslated) > 0 {
				fmt.Fprintf(out, "Warning: blocks %s kept their original text\n", joinInts(result.Untranslated))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Target language code (see subtitler languages)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output path (default: <input>.<lang>.srt)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	_ = cmd.MarkFlagRequired("lang")

	return cmd
}
