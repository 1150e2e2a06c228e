package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeTranscription()
	c.normalizeTranslation()
	c.normalizeLLM()
	c.normalizeMux()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := lookupEnv("SUBTITLER_WORK_DIR"); ok && strings.TrimSpace(c.Paths.WorkDir) == defaultWorkDir {
		c.Paths.WorkDir = value
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	var err error
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = orDefault(c.Tools.FFmpeg, defaultFFmpeg)
	c.Tools.FFprobe = orDefault(c.Tools.FFprobe, defaultFFprobe)
	c.Tools.UVX = orDefault(c.Tools.UVX, defaultUVX)
	c.Tools.WhisperPackage = orDefault(c.Tools.WhisperPackage, defaultWhisperPackage)
}

func (c *Config) normalizeTranscription() {
	c.Transcription.Model = strings.ToLower(orDefault(c.Transcription.Model, defaultModel))
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.Language == "auto" {
		c.Transcription.Language = ""
	}
	c.Transcription.Models = dedupe(c.Transcription.Models, strings.ToLower)
	if len(c.Transcription.Models) == 0 {
		c.Transcription.Models = append([]string(nil), DefaultModels...)
	}
}

func (c *Config) normalizeTranslation() {
	c.Translation.Provider = strings.ToLower(orDefault(c.Translation.Provider, defaultTranslationProvider))
	c.Translation.SourceLanguage = orDefault(c.Translation.SourceLanguage, defaultTranslationSource)
	c.Translation.Endpoint = orDefault(c.Translation.Endpoint, defaultTranslationEndpoint)
	c.Translation.Languages = dedupe(c.Translation.Languages, func(s string) string { return s })
	if len(c.Translation.Languages) == 0 {
		c.Translation.Languages = append([]string(nil), DefaultLanguages...)
	}
	if c.Translation.MaxRetries < 0 {
		c.Translation.MaxRetries = 0
	}
	if c.Translation.RetryBackoffSeconds < 0 {
		c.Translation.RetryBackoffSeconds = 0
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = orDefault(c.LLM.BaseURL, defaultLLMBaseURL)
	c.LLM.Model = orDefault(c.LLM.Model, defaultLLMModel)
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = orDefault(c.LLM.Title, defaultLLMTitle)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := lookupEnv("SUBTITLER_LLM_API_KEY"); ok {
			c.LLM.APIKey = value
		} else if value, ok := lookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = value
		}
	}
}

func (c *Config) normalizeMux() {
	c.Mux.Mode = strings.ToLower(orDefault(c.Mux.Mode, defaultMuxMode))
}

func (c *Config) normalizeCache() error {
	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = defaultCachePath()
	}
	var err error
	if c.Cache.Path, err = expandPath(strings.TrimSpace(c.Cache.Path)); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.Listen = orDefault(c.Server.Listen, defaultServerListen)
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultServerMaxUploadMB
	}
	if value, ok := lookupEnv("SUBTITLER_API_TOKEN"); ok {
		c.Server.Token = value
	}
	c.Server.Token = strings.TrimSpace(c.Server.Token)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format != "json" {
		c.Logging.Format = defaultLogFormat
	}
	if value, ok := lookupEnv("SUBTITLER_LOG_LEVEL"); ok {
		c.Logging.Level = value
	}
	c.Logging.Level = strings.ToLower(orDefault(c.Logging.Level, defaultLogLevel))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func orDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func dedupe(values []string, canon func(string) string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := canon(strings.TrimSpace(value))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
