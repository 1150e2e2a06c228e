package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"subtitler/internal/media/ffprobe"
	"subtitler/internal/media/split"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect <video>",
		Short: "Show streams, duration, and the split plan for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			video, err := resolveInputFile(args[0], "video")
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			prober := ffprobe.NewProber(cfg.Tools.FFprobe, cfg.ProbeTimeout())
			result, err := prober.Inspect(cmd.Context(), video)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, result)
			}

			sizeMB, err := split.FileSizeMB(video)
			if err != nil {
				return err
			}
			parts := split.PartCount(sizeMB, cfg.Split.MaxSizeMB)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:     %s\n", video)
			fmt.Fprintf(out, "Format:   %s\n", orDash(result.Format.FormatName))
			fmt.Fprintf(out, "Duration: %.3fs\n", result.DurationSeconds())
			fmt.Fprintf(out, "Size:     %.1f MB (threshold %.0f MB, %d part(s))\n", sizeMB, cfg.Split.MaxSizeMB, parts)
			if rate := result.BitRate(); rate > 0 {
				fmt.Fprintf(out, "Bitrate:  %d kb/s\n", rate/1000)
			}

			rows := make([][]string, 0, len(result.Streams))
			for _, stream := range result.Streams {
				rows = append(rows, []string{
					strconv.Itoa(stream.Index),
					stream.CodecType,
					orDash(stream.CodecName),
					streamDetail(stream),
					orDash(stream.Tags["language"]),
				})
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "Streams: none")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"#", "Type", "Codec", "Detail", "Language"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the raw ffprobe result as JSON")
	return cmd
}

func streamDetail(stream ffprobe.Stream) string {
	switch strings.ToLower(stream.CodecType) {
	case "video":
		if stream.Width > 0 && stream.Height > 0 {
			return fmt.Sprintf("%dx%d", stream.Width, stream.Height)
		}
	case "audio":
		if stream.SampleRate != "" {
			return fmt.Sprintf("%s Hz, %d ch", stream.SampleRate, stream.Channels)
		}
	}
	return "-"
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
