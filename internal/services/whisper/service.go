package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	langpkg "subtitler/internal/language"
	"subtitler/internal/logging"
	"subtitler/internal/services"
	"subtitler/internal/subtitles"
)

// ProgressFunc receives coarse progress in percent with a short status message.
type ProgressFunc func(percent float64, message string)

type commandRunner func(ctx context.Context, name string, args ...string) error

// Service provides whisper transcription.
type Service struct {
	cfg    Config
	run    commandRunner
	logger *slog.Logger
}

// NewService creates a whisper service with the given configuration.
func NewService(cfg Config, logger *slog.Logger) *Service {
	return &Service{
		cfg:    cfg.withDefaults(),
		run:    defaultCommandRunner,
		logger: logging.NewComponentLogger(logger, "whisper"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	if runner != nil {
		s.run = runner
	}
}

// Model returns the configured default model name.
func (s *Service) Model() string {
	return s.cfg.Model
}

// Result contains the outcome of a transcription.
type Result struct {
	Segments []subtitles.Segment
	// Model is the model that produced the segments.
	Model string
	// FellBack is true when the requested model failed and a smaller one succeeded.
	FellBack bool
	// Language is the language whisper reported, if any.
	Language string
}

// Transcribe extracts audio from media into workDir, runs whisper, and
// returns the decoded segments. An empty model means the configured default.
// Every failure is tagged with services.ErrTranscription.
func (s *Service) Transcribe(ctx context.Context, media, workDir, model string, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(float64, string) {}
	}
	if strings.TrimSpace(media) == "" {
		return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "validate", "media path required", nil)
	}
	if strings.TrimSpace(workDir) == "" {
		return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "validate", "work directory required", nil)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "prepare", workDir, err)
	}
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		model = s.cfg.Model
	}
	logger := logging.WithContext(ctx, s.logger)

	progress(5, "extracting audio")
	audioPath := filepath.Join(workDir, AudioFileName)
	defer os.Remove(audioPath)
	if err := s.exec(ctx, s.cfg.FFmpegBinary, buildExtractArgs(media, audioPath)...); err != nil {
		return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "extract audio", media, err)
	}
	progress(15, "audio extracted")

	progress(20, fmt.Sprintf("running whisper (%s)", model))
	usedModel := model
	err := s.transcribeAudio(ctx, audioPath, workDir, model)
	fellBack := false
	if err != nil {
		fallback := ""
		if s.cfg.FallbackModels && ctx.Err() == nil {
			fallback = FallbackModel(model)
		}
		if fallback == "" {
			return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "whisper", "model "+model, err)
		}
		logging.WarnWithContext(logger, "whisper failed; retrying with smaller model", "whisper_model_fallback",
			logging.String("model", model),
			logging.String("fallback_model", fallback),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check available memory or choose a smaller model"),
			logging.String(logging.FieldImpact, "transcript quality may be lower"),
		)
		if retryErr := s.transcribeAudio(ctx, audioPath, workDir, fallback); retryErr != nil {
			return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "whisper",
				fmt.Sprintf("models %s and %s failed", model, fallback), errors.Join(err, retryErr))
		}
		usedModel = fallback
		fellBack = true
	}

	jsonPath := outputJSONPath(audioPath, workDir)
	defer os.Remove(jsonPath)
	payload, err := LoadPayload(jsonPath)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTranscription, "transcribe", "load output", jsonPath, err)
	}
	progress(95, "segments loaded")

	logger.Debug("transcription complete",
		logging.String("model", usedModel),
		logging.Int("segments", len(payload.Segments)),
		logging.String("language", payload.Language),
	)
	return Result{
		Segments: payload.segments(),
		Model:    usedModel,
		FellBack: fellBack,
		Language: payload.Language,
	}, nil
}

func (s *Service) transcribeAudio(ctx context.Context, audioPath, outputDir, model string) error {
	return s.exec(ctx, s.cfg.UVXBinary, s.buildArgs(audioPath, outputDir, model)...)
}

// exec runs one external command bounded by the configured timeout.
func (s *Service) exec(ctx context.Context, name string, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	err := s.run(runCtx, name, args...)
	if err != nil && runCtx.Err() != nil {
		return fmt.Errorf("%w: %w", err, runCtx.Err())
	}
	return err
}

// buildArgs constructs the uvx command arguments for whisper.
func (s *Service) buildArgs(source, outputDir, model string) []string {
	args := make([]string, 0, 24)

	if s.cfg.CUDAEnabled {
		args = append(args,
			"--index-url", CUDAIndexURL,
			"--extra-index-url", PypiIndexURL,
		)
	}

	args = append(args,
		"--from", s.cfg.Package,
		"whisper",
		source,
		"--model", model,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--verbose", "False",
	)

	if lang := spokenLanguage(s.cfg.Language); lang != "" {
		args = append(args, "--language", lang)
	}

	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--fp16", "False")
	}

	return args
}

func spokenLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "auto") {
		return ""
	}
	return langpkg.ToISO2(value)
}

func outputJSONPath(audioPath, outputDir string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(outputDir, base+".json")
}

// Segment represents a transcribed segment from whisper JSON output.
type Segment struct {
	ID    int     `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Payload is the JSON document whisper writes with --output_format json.
type Payload struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

func (p Payload) segments() []subtitles.Segment {
	out := make([]subtitles.Segment, 0, len(p.Segments))
	for _, seg := range p.Segments {
		out = append(out, subtitles.Segment{Start: seg.Start, End: seg.End, Text: strings.TrimSpace(seg.Text)})
	}
	return out
}

// LoadPayload loads a whisper JSON output file.
func LoadPayload(jsonPath string) (Payload, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Payload{}, err
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Payload{}, fmt.Errorf("parse whisper json: %w", err)
	}
	return payload, nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	cmd.Env = append(os.Environ(), "PYTHONIOENCODING=utf-8")
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, tail(output.String(), 2048))
	}
	return nil
}

func tail(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return text[len(text)-limit:]
}
