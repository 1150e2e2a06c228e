package whisper

import (
	"strings"
	"time"

	"subtitler/internal/config"
)

// Config captures runtime settings for whisper transcription.
type Config struct {
	// Model is the default whisper model size (e.g. "base").
	Model string
	// Language is the spoken-language hint; empty or "auto" lets whisper detect it.
	Language string
	// FallbackModels retries a failed invocation once with a smaller model.
	FallbackModels bool
	// CUDAEnabled runs whisper on the GPU.
	CUDAEnabled bool
	// Timeout bounds each external call (audio extraction, each whisper attempt).
	Timeout time.Duration

	FFmpegBinary string
	UVXBinary    string
	Package      string
}

// Whisper configuration constants.
const (
	DefaultModel   = "base"
	DefaultTimeout = time.Hour
	DefaultPackage = "openai-whisper"
	CUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL   = "https://pypi.org/simple"
	OutputFormat   = "json"
	CPUDevice      = "cpu"
	CUDADevice     = "cuda"
	SampleRate     = "16000"
	AudioFileName  = "audio.wav"
)

// ConfigFromApp maps application configuration onto whisper settings.
func ConfigFromApp(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		Model:          cfg.Transcription.Model,
		Language:       cfg.Transcription.Language,
		FallbackModels: cfg.Transcription.FallbackModels,
		CUDAEnabled:    cfg.Transcription.CUDAEnabled,
		Timeout:        cfg.TranscriptionTimeout(),
		FFmpegBinary:   cfg.Tools.FFmpeg,
		UVXBinary:      cfg.Tools.UVX,
		Package:        cfg.Tools.WhisperPackage,
	}
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(c.FFmpegBinary) == "" {
		c.FFmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(c.UVXBinary) == "" {
		c.UVXBinary = "uvx"
	}
	if strings.TrimSpace(c.Package) == "" {
		c.Package = DefaultPackage
	}
	return c
}

// FallbackModel returns the model to retry with after model failed, or ""
// when there is none.
func FallbackModel(model string) string {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "tiny":
		return ""
	case "base":
		return "tiny"
	default:
		return "base"
	}
}
