package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"subtitler/internal/config"
	"subtitler/internal/services"
	"subtitler/internal/services/httpretry"
)

const (
	defaultHTTPTimeout   = 60 * time.Second
	defaultRetryAttempts = 3
	defaultBaseURL       = "https://openrouter.ai/api/v1/chat/completions"
)

// Config holds the connection settings for one chat completion endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string
	Title   string
	Timeout time.Duration
}

// ConfigFromApp maps the [llm] section onto client settings.
func ConfigFromApp(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.Title,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}
}

// Prompt is a single-turn chat request.
type Prompt struct {
	System string
	User   string
	// JSON requests a json_object response format.
	JSON bool
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      httpretry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the attempt count (default 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.BaseDelay = baseDelay
		c.retry.MaxDelay = maxDelay
	}
}

// WithSleeper replaces retry sleeps.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.retry.Sleeper = sleeper
	}
}

// NewClient builds a client. Blank BaseURL selects OpenRouter and a
// non-positive Timeout selects 60s.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = Config{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		BaseURL: strings.TrimSpace(cfg.BaseURL),
		Model:   strings.TrimSpace(cfg.Model),
		Referer: strings.TrimSpace(cfg.Referer),
		Title:   strings.TrimSpace(cfg.Title),
		Timeout: cfg.Timeout,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	retry := httpretry.DefaultPolicy()
	retry.MaxAttempts = defaultRetryAttempts

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      retry,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Complete sends p and returns the first non-empty completion text. HTTP
// 408/429/5xx, network timeouts, and empty completions are retried.
func (c *Client) Complete(ctx context.Context, p Prompt) (string, error) {
	if !c.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "llm", "complete", "api key required", nil)
	}
	p.System = strings.TrimSpace(p.System)
	p.User = strings.TrimSpace(p.User)
	if p.User == "" {
		return "", services.Wrap(services.ErrValidation, "llm", "complete", "user prompt required", nil)
	}

	body := c.newRequest(p)
	var content string
	err := c.retry.Do(ctx, "llm complete", func(ctx context.Context) error {
		resp, raw, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		text, finish := resp.text()
		if text == "" {
			return &emptyCompletionError{FinishReason: finish, Refusal: resp.refusal(), Snippet: snippet(string(raw))}
		}
		content = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// Ping asks the model for a fixed JSON reply to confirm the key and model work.
func (c *Client) Ping(ctx context.Context) error {
	content, err := c.Complete(ctx, Prompt{
		System: "Reply with JSON only.",
		User:   `Reply with {"ok":true}`,
		JSON:   true,
	})
	if err != nil {
		return err
	}
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := DecodeJSON(content, &reply); err != nil {
		return fmt.Errorf("llm ping: %w", err)
	}
	if !reply.OK {
		return errors.New("llm ping: unexpected reply " + snippet(content))
	}
	return nil
}

type emptyCompletionError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyCompletionError) Error() string {
	msg := "empty completion"
	if e.FinishReason != "" {
		msg += " (finish_reason=" + e.FinishReason + ")"
	}
	if e.Refusal != "" {
		msg += ": refused: " + e.Refusal
	}
	return msg + "; response: " + e.Snippet
}

// Retryable implements httpretry.Retryable.
func (e *emptyCompletionError) Retryable() bool { return true }
