package config

const (
	defaultConfigPath             = "~/.config/subtitler/config.toml"
	projectConfigName             = "subtitler.toml"
	defaultWorkDir                = "~/.local/share/subtitler/work"
	defaultLogDir                 = "~/.local/share/subtitler/logs"
	defaultFFmpeg                 = "ffmpeg"
	defaultFFprobe                = "ffprobe"
	defaultUVX                    = "uvx"
	defaultWhisperPackage         = "openai-whisper"
	defaultModel                  = "base"
	defaultTranscriptionTimeout   = 3600
	defaultMaxSizeMB              = 190
	defaultProbeTimeoutSeconds    = 30
	defaultCutTimeoutSeconds      = 120
	defaultCutTimeoutPerMBSeconds = 1.0
	defaultTranslationProvider    = "google"
	defaultTranslationSource      = "auto"
	defaultTranslationEndpoint    = "https://translate.googleapis.com/translate_a/single"
	defaultTranslationTimeout     = 30
	defaultTranslationRetries     = 2
	defaultTranslationBackoff     = 1.0
	defaultLLMBaseURL             = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel               = "google/gemini-3-flash-preview"
	defaultLLMTitle               = "Subtitler"
	defaultLLMTimeoutSeconds      = 60
	defaultMuxMode                = "burn"
	defaultMuxTimeoutSeconds      = 3600
	defaultServerListen           = "127.0.0.1:8080"
	defaultServerMaxUploadMB      = 4096
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Recognised values for translation.provider and mux.mode.
const (
	TranslationProviderGoogle = "google"
	TranslationProviderLLM    = "llm"
	MuxModeBurn               = "burn"
	MuxModeSoft               = "soft"
)

// DefaultLanguages is the translation target set used when none is configured.
var DefaultLanguages = []string{"en", "ru", "uz", "tr", "de", "fr", "es", "ar", "zh-CN", "ja", "ko", "hi"}

// DefaultModels lists the whisper model sizes accepted by default.
var DefaultModels = []string{"tiny", "base", "small", "medium", "large", "large-v2", "large-v3", "turbo"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
		},
		Tools: Tools{
			FFmpeg:         defaultFFmpeg,
			FFprobe:        defaultFFprobe,
			UVX:            defaultUVX,
			WhisperPackage: defaultWhisperPackage,
		},
		Transcription: Transcription{
			Model:          defaultModel,
			Models:         append([]string(nil), DefaultModels...),
			FallbackModels: true,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Split: Split{
			MaxSizeMB:              defaultMaxSizeMB,
			ProbeTimeoutSeconds:    defaultProbeTimeoutSeconds,
			CutTimeoutSeconds:      defaultCutTimeoutSeconds,
			CutTimeoutPerMBSeconds: defaultCutTimeoutPerMBSeconds,
			RebaseTimestamps:       true,
		},
		Translation: Translation{
			Provider:            defaultTranslationProvider,
			SourceLanguage:      defaultTranslationSource,
			Languages:           append([]string(nil), DefaultLanguages...),
			Endpoint:            defaultTranslationEndpoint,
			TimeoutSeconds:      defaultTranslationTimeout,
			MaxRetries:          defaultTranslationRetries,
			RetryBackoffSeconds: defaultTranslationBackoff,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Mux: Mux{
			Mode:           defaultMuxMode,
			TimeoutSeconds: defaultMuxTimeoutSeconds,
		},
		Cache: Cache{
			Path: defaultCachePath(),
		},
		Server: Server{
			Listen:      defaultServerListen,
			MaxUploadMB: defaultServerMaxUploadMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
