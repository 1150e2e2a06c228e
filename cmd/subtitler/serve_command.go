package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"subtitler/internal/httpapi"
	"subtitler/internal/logging"
	"subtitler/internal/metrics"
	"subtitler/internal/pipeline"
	"subtitler/internal/staging"
	"subtitler/internal/subtitles"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var listen string
	var staleAfter time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the subtitle API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), ctx, listen, staleAfter)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default: server.listen)")
	cmd.Flags().DurationVar(&staleAfter, "clean-stale", 24*time.Hour, "Remove run directories older than this at startup (0 disables)")
	return cmd
}

func runServer(cmdCtx context.Context, ctx *commandContext, listen string, staleAfter time.Duration) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}

	if staleAfter > 0 {
		result := staging.CleanStale(signalCtx, cfg.Paths.WorkDir, staleAfter, logger)
		if len(result.Removed) > 0 {
			logger.Info("removed stale run directories", logging.Int("count", len(result.Removed)))
		}
	}

	orchestrator, err := pipeline.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer orchestrator.Close()

	deps := httpapi.Dependencies{
		Runner:  orchestrator,
		Muxer:   subtitles.NewMuxer(cfg.Tools.FFmpeg, cfg.MuxTimeout(), logger),
		Metrics: metrics.New(),
	}
	translation, err := pipeline.NewTranslationFromConfig(cfg, logger)
	if err != nil {
		logging.WarnWithContext(logger, "translation disabled", "translation_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check translation.provider and the [llm] section"),
			logging.String(logging.FieldImpact, "/api/translate returns 503"),
		)
	} else {
		deps.Translation = translation
	}

	server := httpapi.New(cfg, deps, logger)
	if err := server.Start(signalCtx); err != nil {
		return err
	}
	defer server.Stop()

	<-signalCtx.Done()
	logger.Info("shutting down", logging.String(logging.FieldEventType, "api_server_stop"))
	return nil
}
