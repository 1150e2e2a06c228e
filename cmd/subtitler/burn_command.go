package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subtitler/internal/config"
	"subtitler/internal/subtitles"
)

func newBurnCommand(ctx *commandContext) *cobra.Command {
	var outputPath string
	var mode string
	var lang string

	cmd := &cobra.Command{
		Use:   "burn <video> <subtitle.srt>",
		Short: "Burn subtitles into a video or add them as a soft track",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			video, err := resolveInputFile(args[0], "video")
			if err != nil {
				return err
			}
			subtitle, err := resolveInputFile(args[1], "subtitle")
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

			req := subtitles.MuxRequest{
				VideoPath:    video,
				SubtitlePath: subtitle,
				Mode:         strings.ToLower(strings.TrimSpace(mode)),
				Language:     strings.TrimSpace(lang),
			}
			if req.Mode == "" {
				req.Mode = cfg.Mux.Mode
			}
			if out := strings.TrimSpace(outputPath); out != "" {
				expanded, err := config.ExpandPath(out)
				if err != nil {
					return fmt.Errorf("resolve output path: %w", err)
				}
				req.OutputPath = expanded
			}

			muxer := subtitles.NewMuxer(cfg.Tools.FFmpeg, cfg.MuxTimeout(), logger)
			result, err := muxer.Mux(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("mux failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %s)\n", result.OutputPath, result.Mode, result.Elapsed.Round(time.Second))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output video path (default: <video>_subtitled<ext>)")
	cmd.Flags().StringVar(&mode, "mode", "", "burn or soft (default: mux.mode)")
	cmd.Flags().StringVarP(&lang, "lang", "l", "", "Language tag for a soft subtitle track")

	return cmd
}
