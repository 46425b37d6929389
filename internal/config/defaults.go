package config

const (
	defaultEventsDir        = "~/.local/share/parish/events"
	defaultAssetsDir        = "~/.local/share/parish/assets"
	defaultLogDir           = "~/.local/share/parish/logs"
	defaultAPIBind          = "127.0.0.1:7734"
	defaultWhisperModel     = "base"
	defaultWhisperModelDir  = "~/.local/share/parish/models"
	defaultWhisperLanguage  = "auto"
	defaultWhisperMaxLine   = 84
	defaultAIBaseURL        = "http://127.0.0.1:11434"
	defaultAIModel          = "qwen2.5:latest"
	defaultAISummaryLength  = "medium"
	defaultAITimeoutSeconds = 300
	defaultThumbBackend     = "comfyui"
	defaultComfyUIURL       = "http://127.0.0.1:8188"
	defaultThumbWidth       = 1280
	defaultThumbHeight      = 720
	defaultThumbSteps       = 9
	defaultTitleFontSize    = 96
	defaultSubtitleFontSize = 64
	defaultThumbTimeout     = 180
	defaultYouTubePrivacy   = "unlisted"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			EventsDir: defaultEventsDir,
			AssetsDir: defaultAssetsDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Whisper: Whisper{
			Model:         defaultWhisperModel,
			ModelDir:      defaultWhisperModelDir,
			Language:      defaultWhisperLanguage,
			MaxLineLength: defaultWhisperMaxLine,
			SplitOnWord:   true,
		},
		AI: AI{
			BaseURL:          defaultAIBaseURL,
			Model:            defaultAIModel,
			SummaryLength:    defaultAISummaryLength,
			SummaryLanguages: []string{"en"},
			UnloadModelAfter: true,
			TimeoutSeconds:   defaultAITimeoutSeconds,
		},
		Thumbnail: Thumbnail{
			Backend:          defaultThumbBackend,
			ComfyUIURL:       defaultComfyUIURL,
			Width:            defaultThumbWidth,
			Height:           defaultThumbHeight,
			Steps:            defaultThumbSteps,
			TitleFontSize:    defaultTitleFontSize,
			SubtitleFontSize: defaultSubtitleFontSize,
			TimeoutSeconds:   defaultThumbTimeout,
		},
		YouTube: YouTube{
			Privacy: defaultYouTubePrivacy,
		},
		Workflow: Workflow{
			MirrorProgress: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
