package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateSplit(); err != nil {
		return err
	}
	if err := c.validateTranslation(); err != nil {
		return err
	}
	if err := c.validateMux(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return ensurePositiveMap(map[string]int{
		"transcription.timeout_seconds": c.Transcription.TimeoutSeconds,
		"split.probe_timeout_seconds":   c.Split.ProbeTimeoutSeconds,
		"split.cut_timeout_seconds":     c.Split.CutTimeoutSeconds,
		"translation.timeout_seconds":   c.Translation.TimeoutSeconds,
		"mux.timeout_seconds":           c.Mux.TimeoutSeconds,
		"server.max_upload_mb":          c.Server.MaxUploadMB,
	})
}

func (c *Config) validateTranscription() error {
	if len(c.Transcription.Models) == 0 {
		return errors.New("transcription.models must include at least one model")
	}
	if !c.SupportsModel(c.Transcription.Model) {
		return fmt.Errorf("transcription.model %q is not one of %s", c.Transcription.Model, strings.Join(c.Transcription.Models, ", "))
	}
	return nil
}

func (c *Config) validateSplit() error {
	if c.Split.MaxSizeMB <= 0 {
		return errors.New("split.max_size_mb must be positive")
	}
	if c.Split.CutTimeoutPerMBSeconds < 0 {
		return errors.New("split.cut_timeout_per_mb_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateTranslation() error {
	switch c.Translation.Provider {
	case TranslationProviderGoogle:
		if strings.TrimSpace(c.Translation.Endpoint) == "" {
			return errors.New("translation.endpoint must be set for the google provider")
		}
	case TranslationProviderLLM:
		if c.LLM.APIKey == "" {
			return errors.New("llm.api_key must be set when translation.provider is \"llm\" (or set SUBTITLER_LLM_API_KEY / OPENROUTER_API_KEY)")
		}
	default:
		return fmt.Errorf("translation.provider %q is not supported (use %q or %q)", c.Translation.Provider, TranslationProviderGoogle, TranslationProviderLLM)
	}
	if len(c.Translation.Languages) == 0 {
		return errors.New("translation.languages must include at least one language")
	}
	return nil
}

func (c *Config) validateMux() error {
	if c.Mux.Mode != MuxModeBurn && c.Mux.Mode != MuxModeSoft {
		return fmt.Errorf("mux.mode %q is not supported (use %q or %q)", c.Mux.Mode, MuxModeBurn, MuxModeSoft)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Logging.Level) {
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// SupportsLanguage reports whether code is a configured translation target.
// Matching is case-insensitive so zh-cn and zh-CN are equivalent.
func (c *Config) SupportsLanguage(code string) bool {
	code = strings.TrimSpace(code)
	for _, candidate := range c.Translation.Languages {
		if strings.EqualFold(candidate, code) {
			return true
		}
	}
	return false
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
