package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"subtitler/internal/config"
	"subtitler/internal/deps"
	"subtitler/internal/services/llm"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var ping bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Tools", colorize) {
				fmt.Fprintln(out, line)
			}
			statuses := deps.CheckBinaries(deps.Requirements(cfg))
			statuses = append(statuses, deps.CheckSubtitlesFilter(cmd.Context(), cfg.Tools.FFmpeg))
			for _, status := range statuses {
				fmt.Fprintln(out, renderStatusLine(status.Name, dependencyKind(status), dependencyMessage(status), colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(out, line)
			}
			configPath := ctx.configPath
			if configPath == "" {
				configPath = "(defaults)"
			}
			fmt.Fprintln(out, renderStatusLine("Config", statusInfo, configPath, colorize))
			fmt.Fprintln(out, renderStatusLine("Work dir", statusInfo, cfg.Paths.WorkDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Output dir", statusInfo, cfg.Paths.OutputDir, colorize))
			fmt.Fprintln(out, renderStatusLine("Model", statusInfo, cfg.Transcription.Model, colorize))
			kind, message := translationStatus(cfg)
			fmt.Fprintln(out, renderStatusLine("Translation", kind, message, colorize))
			if ping && strings.EqualFold(strings.TrimSpace(cfg.Translation.Provider), config.TranslationProviderLLM) {
				kind, message = pingLLM(cmd.Context(), cfg)
				fmt.Fprintln(out, renderStatusLine("LLM reachability", kind, message, colorize))
			}
			fmt.Fprintln(out, renderStatusLine("Transcript cache", statusInfo, yesNo(cfg.Cache.Enabled), colorize))

			if missing := deps.MissingRequired(statuses); len(missing) > 0 {
				return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ping, "ping", false, "Send a test request to the llm translation provider")
	return cmd
}

func pingLLM(ctx context.Context, cfg *config.Config) (statusKind, string) {
	client := llm.NewClient(llm.ConfigFromApp(cfg), llm.WithRetryMaxAttempts(1))
	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return statusError, err.Error()
	}
	return statusOK, client.Model()
}

func dependencyKind(status deps.Status) statusKind {
	switch {
	case status.Available:
		return statusOK
	case status.Optional:
		return statusWarn
	default:
		return statusError
	}
}

func dependencyMessage(status deps.Status) string {
	if status.Available {
		if status.Path != "" {
			return status.Path
		}
		return status.Description
	}
	return status.Detail
}

func translationStatus(cfg *config.Config) (statusKind, string) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Translation.Provider))
	if provider == config.TranslationProviderLLM {
		return statusOK, fmt.Sprintf("llm (%s)", cfg.LLM.Model)
	}
	return statusOK, "google"
}
