package pipeline

import (
	"context"
	"log/slog"
	"time"

	"subtitler/internal/logging"
	"subtitler/internal/services"
)

// runStage executes fn as a named pipeline stage. The stage name is attached
// to the context so nested loggers pick it up.
func runStage(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) error {
	stageCtx := services.WithStage(ctx, name)
	stageLogger := logging.WithContext(stageCtx, logger)

	stageLogger.Debug("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()
	if err := fn(stageCtx); err != nil {
		logging.ErrorWithContext(stageLogger, "stage failed", "stage_failure",
			logging.String("error_kind", services.Kind(err)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, stageHint(name)),
		)
		return err
	}
	stageLogger.Debug("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func stageHint(name string) string {
	switch name {
	case stageSplit:
		return "check ffprobe/ffmpeg output and free disk space in work_dir"
	case stageTranscribe:
		return "run `subtitler doctor` and check the whisper launcher output"
	case stageWrite:
		return "check permissions on output_dir"
	default:
		return "check logs for details"
	}
}
