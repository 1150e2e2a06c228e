package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working and output directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Tools names the external executables the pipeline shells out to.
type Tools struct {
	FFmpeg         string `toml:"ffmpeg"`
	FFprobe        string `toml:"ffprobe"`
	UVX            string `toml:"uvx"`
	WhisperPackage string `toml:"whisper_package"`
}

// Transcription contains speech-to-text settings.
type Transcription struct {
	Model          string   `toml:"model"`
	Language       string   `toml:"language"`
	Models         []string `toml:"models"`
	FallbackModels bool     `toml:"fallback_models"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	CUDAEnabled    bool     `toml:"cuda_enabled"`
}

// Split controls how oversized videos are cut into parts.
type Split struct {
	MaxSizeMB              float64 `toml:"max_size_mb"`
	ProbeTimeoutSeconds    int     `toml:"probe_timeout_seconds"`
	CutTimeoutSeconds      int     `toml:"cut_timeout_seconds"`
	CutTimeoutPerMBSeconds float64 `toml:"cut_timeout_per_mb_seconds"`
	RebaseTimestamps       bool    `toml:"rebase_timestamps"`
}

// Translation contains machine translation settings.
type Translation struct {
	Provider            string   `toml:"provider"`
	SourceLanguage      string   `toml:"source_language"`
	Languages           []string `toml:"languages"`
	Endpoint            string   `toml:"endpoint"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	MaxRetries          int      `toml:"max_retries"`
	RetryBackoffSeconds float64  `toml:"retry_backoff_seconds"`
}

// LLM contains OpenAI-compatible chat completion settings used by the llm
// translation provider.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Mux controls how subtitles are combined with video.
type Mux struct {
	Mode           string `toml:"mode"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Cache configures the optional transcript cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Server configures the HTTP surface started by `subtitler serve`.
type Server struct {
	Listen      string `toml:"listen"`
	MaxUploadMB int    `toml:"max_upload_mb"`
	// Token, when set, is required as a bearer token on /api routes.
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for subtitler.
//
// Configuration sections by subsystem:
//   - Paths: work, output, and log directories
//   - Tools: ffmpeg, ffprobe, and the whisper launcher
//   - Transcription: model selection and timeouts
//   - Split: size threshold and cut timeouts for oversized videos
//   - Translation / LLM: translation provider settings
//   - Mux: burn-in or soft subtitle tracks
//   - Cache: transcript cache
//   - Server: HTTP listener
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Tools         Tools         `toml:"tools"`
	Transcription Transcription `toml:"transcription"`
	Split         Split         `toml:"split"`
	Translation   Translation   `toml:"translation"`
	LLM           LLM           `toml:"llm"`
	Mux           Mux           `toml:"mux"`
	Cache         Cache         `toml:"cache"`
	Server        Server        `toml:"server"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file is not an error: defaults apply
// and exists is false.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if err := loadEnvFile(); err != nil {
		return nil, "", false, err
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadEnvFile populates unset environment variables from SUBTITLER_ENV_FILE or
// ./.env. Variables already present in the environment win.
func loadEnvFile() error {
	path := strings.TrimSpace(os.Getenv("SUBTITLER_ENV_FILE"))
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("SUBTITLER_ENV_FILE %q: %w", path, err)
		}
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs(projectConfigName)
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.OutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(c.Cache.Path), 0o755); err != nil {
			return fmt.Errorf("create cache directory: %w", err)
		}
	}
	return nil
}

// ProbeTimeout bounds a single ffprobe invocation.
func (c *Config) ProbeTimeout() time.Duration {
	return seconds(c.Split.ProbeTimeoutSeconds)
}

// CutTimeout returns the timeout for cutting one part of roughly partMB megabytes.
func (c *Config) CutTimeout(partMB float64) time.Duration {
	base := seconds(c.Split.CutTimeoutSeconds)
	if partMB <= 0 || c.Split.CutTimeoutPerMBSeconds <= 0 {
		return base
	}
	return base + time.Duration(partMB*c.Split.CutTimeoutPerMBSeconds*float64(time.Second))
}

// TranscriptionTimeout bounds one whisper invocation.
func (c *Config) TranscriptionTimeout() time.Duration {
	return seconds(c.Transcription.TimeoutSeconds)
}

// TranslationTimeout bounds one translation request.
func (c *Config) TranslationTimeout() time.Duration {
	return seconds(c.Translation.TimeoutSeconds)
}

// MuxTimeout bounds one burn or soft mux invocation.
func (c *Config) MuxTimeout() time.Duration {
	return seconds(c.Mux.TimeoutSeconds)
}

// SupportsModel reports whether model is one of the configured whisper model sizes.
func (c *Config) SupportsModel(model string) bool {
	model = strings.ToLower(strings.TrimSpace(model))
	for _, candidate := range c.Transcription.Models {
		if candidate == model {
			return true
		}
	}
	return false
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCachePath() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "subtitler", "transcripts.db")
	}
	return "~/.cache/subtitler/transcripts.db"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML, masking credentials.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	if clone.LLM.APIKey != "" {
		clone.LLM.APIKey = "********"
	}
	if clone.Server.Token != "" {
		clone.Server.Token = "********"
	}
	data, err := toml.Marshal(clone)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
