package config

const (
	defaultDataDir             = "~/.local/share/factsheet"
	defaultStorageDir          = "~/.local/share/factsheet/objects"
	defaultLogDir              = "~/.local/share/factsheet/logs"
	defaultAPIBind             = "127.0.0.1:8470"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultGeminiBaseURL       = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel         = "gemini-2.5-flash"
	defaultGeminiTimeout       = 60
	defaultSentinel            = "AI_SUMMARY"
	defaultMaxPromptChars      = 80000
	defaultSignedURLTTLSeconds = 3600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			StorageDir: defaultStorageDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Gemini: Gemini{
			BaseURL:        defaultGeminiBaseURL,
			Model:          defaultGeminiModel,
			TimeoutSeconds: defaultGeminiTimeout,
		},
		Analysis: Analysis{
			Sentinel:       defaultSentinel,
			MaxPromptChars: defaultMaxPromptChars,
		},
		Storage: Storage{
			SignedURLTTLSeconds: defaultSignedURLTTLSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
