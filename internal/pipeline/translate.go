package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"subtitler/internal/fileutil"
	"subtitler/internal/logging"
	"subtitler/internal/services"
	"subtitler/internal/services/translate"
	"subtitler/internal/subtitles"
)

// TranslateResult is the outcome of a translation pass.
type TranslateResult struct {
	Content  string
	Document subtitles.Document
	Target   string
	Total    int
	// Untranslated lists the indices of blocks that kept their original text.
	Untranslated []int
}

// Translation runs a translator over every block of a subtitle document.
type Translation struct {
	translator translate.Translator
	logger     *slog.Logger
}

// NewTranslation wraps translator in a block-by-block translation pass.
func NewTranslation(translator translate.Translator, logger *slog.Logger) *Translation {
	return &Translation{
		translator: translator,
		logger:     logging.NewComponentLogger(logger, "translation"),
	}
}

// Translate parses content, translates each block's text into target, and
// renders the result with the original indices and timestamps.
func (t *Translation) Translate(ctx context.Context, content, target string, progress ProgressFunc) (TranslateResult, error) {
	return t.TranslateDocument(ctx, subtitles.Parse(content), target, progress)
}

// TranslateDocument translates doc block by block. A block whose translation
// fails or comes back empty keeps its original text; that never fails the pass.
func (t *Translation) TranslateDocument(ctx context.Context, doc subtitles.Document, target string, progress ProgressFunc) (TranslateResult, error) {
	if t == nil || t.translator == nil {
		return TranslateResult{}, services.Wrap(services.ErrConfiguration, "translate", "init", "translator not configured", nil)
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return TranslateResult{}, services.Wrap(services.ErrValidation, "translate", "validate", "target language required", nil)
	}
	if progress == nil {
		progress = func(float64, string) {}
	}
	logger := logging.WithContext(services.WithStage(ctx, "translate"), t.logger).With(
		logging.String("target", target),
		logging.String("provider", t.translator.Name()),
	)

	total := doc.Len()
	blocks := make([]subtitles.Block, total)
	copy(blocks, doc.Blocks)
	result := TranslateResult{Target: target, Total: total}

	for i := range blocks {
		block := &blocks[i]
		if strings.TrimSpace(block.Text) != "" {
			translated, err := t.translator.Translate(ctx, block.Text, target)
			translated = strings.TrimSpace(translated)
			switch {
			case err != nil:
				result.Untranslated = append(result.Untranslated, block.Index)
				logging.WarnWithContext(logger, "block translation failed; keeping original text", "block_translation_failed",
					logging.Int("block", block.Index),
					logging.String("error_kind", services.Kind(err)),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check translation provider connectivity"),
					logging.String(logging.FieldImpact, "block stays in the source language"),
				)
			case translated == "":
				result.Untranslated = append(result.Untranslated, block.Index)
				logger.Debug("empty translation; keeping original text", logging.Int("block", block.Index))
			default:
				block.Text = translated
			}
		}
		progress(100*float64(i+1)/float64(total), fmt.Sprintf("translated block %d of %d", i+1, total))
	}
	if total == 0 {
		progress(100, "nothing to translate")
	}

	result.Document = subtitles.Document{Blocks: blocks}
	result.Content = subtitles.RenderPreservingIndices(result.Document)

	logger.Info("translation complete",
		logging.String(logging.FieldEventType, "translation_complete"),
		logging.Int("blocks", total),
		logging.Int("untranslated", len(result.Untranslated)),
	)
	return result, nil
}

// TranslateFile translates the SRT at input and writes the result to output.
func (t *Translation) TranslateFile(ctx context.Context, input, output, target string, progress ProgressFunc) (TranslateResult, error) {
	data, err := os.ReadFile(input)
	if err != nil {
		return TranslateResult{}, services.Wrap(services.ErrNotFound, "translate", "read", input, err)
	}
	result, err := t.Translate(ctx, string(data), target, progress)
	if err != nil {
		return result, err
	}
	if _, err := fileutil.WriteReader(output, strings.NewReader(result.Content)); err != nil {
		return result, services.Wrap(services.ErrTransient, "translate", "write", output, err)
	}
	return result, nil
}
