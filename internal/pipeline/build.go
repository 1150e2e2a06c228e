package pipeline

import (
	"log/slog"

	"subtitler/internal/config"
	"subtitler/internal/media/ffprobe"
	"subtitler/internal/media/split"
	"subtitler/internal/services"
	"subtitler/internal/services/translate"
	"subtitler/internal/services/whisper"
	"subtitler/internal/transcriptcache"
)

// NewFromConfig wires ffprobe, the ffmpeg splitter, the whisper service and,
// when enabled, the transcript cache. Callers must Close the orchestrator.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Orchestrator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config required", nil)
	}
	prober := ffprobe.NewProber(cfg.Tools.FFprobe, cfg.ProbeTimeout())
	splitter := split.NewSplitter(cfg, prober, logger)
	transcriber := whisper.NewService(whisper.ConfigFromApp(cfg), logger)

	var opts []Option
	if cfg.Cache.Enabled {
		store, err := transcriptcache.Open(cfg.Cache.Path)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "open cache", cfg.Cache.Path, err)
		}
		opts = append(opts, WithCache(store), withCloser(store.Close))
	}
	return New(cfg, transcriber, splitter, logger, opts...), nil
}

// NewTranslationFromConfig builds a translation pass using translation.provider.
func NewTranslationFromConfig(cfg *config.Config, logger *slog.Logger) (*Translation, error) {
	translator, err := translate.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewTranslation(translator, logger), nil
}
