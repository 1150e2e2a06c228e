package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	langpkg "subtitler/internal/language"
	"subtitler/internal/logging"
	"subtitler/internal/services"
	"subtitler/internal/services/llm"
)

const llmSystemPrompt = `You translate single subtitle lines.
Translate the user's text into %s (%s).%s
Keep the meaning and tone, keep it on one line, and do not add notes.
Respond with JSON only: {"translation": "<translated text>"}`

type completer interface {
	Complete(ctx context.Context, p llm.Prompt) (string, error)
}

// LLM translates through an OpenAI-compatible chat completion API.
type LLM struct {
	client completer
	source string
	logger *slog.Logger
}

// NewLLM wraps an llm client as a Translator.
func NewLLM(client *llm.Client, source string, logger *slog.Logger) *LLM {
	return newLLM(client, source, logger)
}

func newLLM(client completer, source string, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &LLM{client: client, source: sourceOrAuto(source), logger: logger}
}

// Name implements Translator.
func (l *LLM) Name() string { return "llm" }

// Translate implements Translator.
func (l *LLM) Translate(ctx context.Context, text, target string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return "", services.Wrap(services.ErrValidation, "translate", "llm", "target language required", nil)
	}
	content, err := l.client.Complete(ctx, llm.Prompt{System: l.systemPrompt(target), User: text, JSON: true})
	if err != nil {
		return "", services.Wrap(services.ErrTranslation, "translate", "llm", "target "+target, err)
	}
	var parsed struct {
		Translation string `json:"translation"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return "", services.Wrap(services.ErrTranslation, "translate", "llm", "decode response", err)
	}
	out := strings.TrimSpace(parsed.Translation)
	if out == "" {
		return "", services.Wrap(services.ErrTranslation, "translate", "llm", "empty translation", nil)
	}
	l.logger.Debug("line translated",
		logging.String("provider", l.Name()),
		logging.String("target", target),
		logging.Int("chars", len(text)),
	)
	return out, nil
}

func (l *LLM) systemPrompt(target string) string {
	sourceHint := ""
	if l.source != "auto" {
		sourceHint = fmt.Sprintf(" The source language is %s.", langpkg.DisplayName(l.source))
	}
	return fmt.Sprintf(llmSystemPrompt, langpkg.DisplayName(target), target, sourceHint)
}
