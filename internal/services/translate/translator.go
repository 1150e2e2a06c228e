package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"subtitler/internal/config"
	"subtitler/internal/logging"
	"subtitler/internal/services"
	"subtitler/internal/services/httpretry"
	"subtitler/internal/services/llm"
)

// Translator translates one piece of text into a target language.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
	Name() string
}

// New builds the translator selected by translation.provider.
func New(cfg *config.Config, logger *slog.Logger) (Translator, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "translate", "init", "config required", nil)
	}
	retry := retryPolicy(cfg.Translation)
	logger = logging.NewComponentLogger(logger, "translate")
	switch strings.ToLower(strings.TrimSpace(cfg.Translation.Provider)) {
	case "", config.TranslationProviderGoogle:
		return NewGoogle(GoogleConfig{
			Endpoint: cfg.Translation.Endpoint,
			Source:   cfg.Translation.SourceLanguage,
			Timeout:  cfg.TranslationTimeout(),
			Retry:    retry,
		}, logger), nil
	case config.TranslationProviderLLM:
		client := llm.NewClient(llm.ConfigFromApp(cfg),
			llm.WithRetryMaxAttempts(retry.MaxAttempts),
			llm.WithRetryBackoff(retry.BaseDelay, retry.MaxDelay),
		)
		if !client.Configured() {
			return nil, services.Wrap(services.ErrConfiguration, "translate", "init",
				"llm provider requires llm.api_key (or SUBTITLER_LLM_API_KEY)", nil)
		}
		return NewLLM(client, cfg.Translation.SourceLanguage, logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "translate", "init",
			fmt.Sprintf("unknown translation provider %q", cfg.Translation.Provider), nil)
	}
}

func retryPolicy(t config.Translation) httpretry.Policy {
	policy := httpretry.DefaultPolicy()
	policy.MaxAttempts = t.MaxRetries + 1
	policy.BaseDelay = time.Duration(t.RetryBackoffSeconds * float64(time.Second))
	return policy
}

func sourceOrAuto(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return "auto"
	}
	return source
}
