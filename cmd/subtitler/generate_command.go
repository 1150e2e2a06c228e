package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subtitler/internal/language"
	"subtitler/internal/pipeline"
)

type generateSummary struct {
	RunID          string  `json:"run_id"`
	OutputPath     string  `json:"output_path"`
	Model          string  `json:"model"`
	FellBack       bool    `json:"fell_back"`
	Blocks         int     `json:"blocks"`
	PartsPlanned   int     `json:"parts_planned"`
	PartsProduced  int     `json:"parts_produced"`
	FailedParts    []int   `json:"failed_parts"`
	CacheHits      int     `json:"cache_hits"`
	Rebased        bool    `json:"rebased"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	Translation    string  `json:"translation,omitempty"`
	Untranslated   []int   `json:"untranslated_blocks,omitempty"`
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var model string
	var thresholdMB float64
	var outputPath string
	var translateTo string
	var quiet bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "generate <video>",
		Short: "Transcribe a video into an SRT file, splitting oversized inputs",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("provide the path to the video file. Example: subtitler generate /path/to/video.mp4\nRun subtitler generate --help for more details")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			video, err := resolveInputFile(args[0], "video")
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

			target := ""
			if strings.TrimSpace(translateTo) != "" {
				supported := language.NewSupported(cfg.Translation.Languages)
				resolved, ok := supported.Resolve(translateTo)
				if !ok {
					return fmt.Errorf("unsupported language %q (supported: %s)", translateTo, strings.Join(supported.Codes(), ", "))
				}
				target = resolved
			}

			orchestrator, err := pipeline.NewFromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer orchestrator.Close()

			progress := newProgressReporter(cmd.ErrOrStderr(), "transcribing", quiet || jsonOutput)
			result, err := orchestrator.Run(cmd.Context(), pipeline.Request{
				Video:       video,
				Model:       model,
				ThresholdMB: thresholdMB,
				OutputPath:  strings.TrimSpace(outputPath),
				Progress:    progress.Update,
			})
			progress.Finish()
			if err != nil {
				return fmt.Errorf("subtitle generation failed: %w", err)
			}

			summary := generateSummary{
				RunID:          result.RunID,
				OutputPath:     result.OutputPath,
				Model:          result.Model,
				FellBack:       result.FellBack,
				Blocks:         result.Document.Len(),
				PartsPlanned:   result.PartsPlanned,
				PartsProduced:  result.PartsProduced,
				FailedParts:    result.FailedSequences(),
				CacheHits:      result.CacheHits,
				Rebased:        result.Rebased,
				ElapsedSeconds: result.Elapsed.Seconds(),
			}

			if target != "" {
				translation, err := pipeline.NewTranslationFromConfig(cfg, logger)
				if err != nil {
					return err
				}
				translated := translatedPath(result.OutputPath, target)
				progress := newProgressReporter(cmd.ErrOrStderr(), "translating", quiet || jsonOutput)
				tr, err := translation.TranslateFile(cmd.Context(), result.OutputPath, translated, target, progress.Update)
				progress.Finish()
				if err != nil {
					return fmt.Errorf("translation failed: %w", err)
				}
				summary.Translation = translated
				summary.Untranslated = tr.Untranslated
			}

			if jsonOutput {
				return writeJSON(cmd, summary)
			}
			printGenerateSummary(cmd, summary, result.Elapsed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Whisper model size (default: transcription.model)")
	cmd.Flags().Float64Var(&thresholdMB, "max-size", 0, "Split threshold in MB (default: split.max_size_mb)")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output SRT path (default: unique name in paths.output_dir)")
	cmd.Flags().StringVarP(&translateTo, "translate", "t", "", "Also translate the result into this language code")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run summary as JSON")

	return cmd
}

func printGenerateSummary(cmd *cobra.Command, summary generateSummary, elapsed time.Duration) {
	out := cmd.OutOrStdout()
	model := summary.Model
	if summary.FellBack {
		model += " (fallback)"
	}
	fmt.Fprintf(out, "Generated subtitles: %s (blocks: %d, model: %s, duration: %s)\n",
		summary.OutputPath, summary.Blocks, model, elapsed.Round(time.Second))
	if summary.PartsPlanned > 1 {
		fmt.Fprintf(out, "Parts: %d planned, %d produced, %d transcribed\n",
			summary.PartsPlanned, summary.PartsProduced, summary.PartsPlanned-len(summary.FailedParts))
	}
	if len(summary.FailedParts) > 0 {
		fmt.Fprintf(out, "Warning: parts %s failed; their subtitles are missing\n", joinInts(summary.FailedParts))
	}
	if summary.CacheHits > 0 {
		fmt.Fprintf(out, "Transcript cache hits: %d\n", summary.CacheHits)
	}
	if summary.Translation != "" {
		fmt.Fprintf(out, "Translated subtitles: %s\n", summary.Translation)
		if len(summary.Untranslated) > 0 {
			fmt.Fprintf(out, "Warning: %d blocks kept their original text\n", len(summary.Untranslated))
		}
	}
}

// translatedPath names the translation of path as "<stem>.<lang>.srt"
// alongside it.
func translatedPath(path, lang string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(filepath.Dir(path), fmt.Sprintf("%s.%s.srt", base, lang))
}

func joinInts(values []int) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, ", ")
}
