package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"subtitler/internal/logging"
	"subtitler/internal/services"
	"subtitler/internal/services/httpretry"
)

const defaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"

// GoogleConfig configures the public Google translate endpoint client.
type GoogleConfig struct {
	Endpoint string
	Source   string
	Timeout  time.Duration
	Retry    httpretry.Policy
}

// Google calls the keyless translate_a/single endpoint (client=gtx).
type Google struct {
	cfg        GoogleConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGoogle constructs a Google translator.
func NewGoogle(cfg GoogleConfig, logger *slog.Logger) *Google {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultGoogleEndpoint
	}
	cfg.Source = sourceOrAuto(cfg.Source)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Google{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Name implements Translator.
func (g *Google) Name() string { return "google" }

// Translate implements Translator.
func (g *Google) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", services.Wrap(services.ErrValidation, "translate", "google", "target language required", nil)
	}
	var translated string
	err := g.cfg.Retry.Do(ctx, "google translate", func(ctx context.Context) error {
		out, err := g.requestOnce(ctx, text, target)
		if err != nil {
			return err
		}
		translated = out
		return nil
	})
	if err != nil {
		return "", services.Wrap(services.ErrTranslation, "translate", "google", "target "+target, err)
	}
	g.logger.Debug("line translated",
		logging.String("provider", g.Name()),
		logging.String("target", target),
		logging.Int("chars", len(text)),
	)
	return translated, nil
}

func (g *Google) requestOnce(ctx context.Context, text, target string) (string, error) {
	form := url.Values{}
	form.Set("client", "gtx")
	form.Set("sl", g.cfg.Source)
	form.Set("tl", target)
	form.Set("dt", "t")
	form.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("google request: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("google request: http error (timeout=%s): %w", g.cfg.Timeout, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("google request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", httpretry.NewStatusError("google request", resp, body)
	}
	return parseGoogleResponse(body)
}

// parseGoogleResponse reads [[["translated","source",...],...],...] and
// joins the translated sentence fragments.
func parseGoogleResponse(body []byte) (string, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("google response: decode: %w", err)
	}
	if len(payload) == 0 {
		return "", fmt.Errorf("google response: empty payload")
	}
	var sentences []json.RawMessage
	if err := json.Unmarshal(payload[0], &sentences); err != nil {
		return "", fmt.Errorf("google response: decode sentences: %w", err)
	}
	var b strings.Builder
	for _, raw := range sentences {
		var fields []json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
			continue
		}
		var fragment string
		if err := json.Unmarshal(fields[0], &fragment); err != nil {
			continue
		}
		b.WriteString(fragment)
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", fmt.Errorf("google response: no translated text")
	}
	return out, nil
}
