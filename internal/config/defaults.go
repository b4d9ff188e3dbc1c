package config

const (
	defaultRootDir               = "~/.local/share/facewatch"
	defaultSourceDir             = "~/Pictures/Screenshots"
	defaultLogDirName            = "logs"
	defaultPollInterval          = 60
	defaultSettleDelay           = 5
	defaultStabilizeTimeout      = 300
	defaultStabilizePollInterval = 1
	defaultTransformerExecutable = "~/facefusion/venv/bin/python"
	defaultTransformerScript     = "~/facefusion/facefusion.py"
	defaultReferenceAsset        = "faces/1.jpg"
	defaultTransformerCommand    = "headless-run"
	defaultTransformerTempPath   = "temp"
	defaultFaceSelectorMode      = "one"
	defaultFaceSelectorOrder     = "best-worst"
	defaultConvertQuality        = 90
	defaultRetryMaxAttempts      = 3
	defaultRetryBackoffSeconds   = 600
	defaultNotifyTimeout         = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RootDir:   defaultRootDir,
			SourceDir: defaultSourceDir,
		},
		Watch: Watch{
			PollInterval:          defaultPollInterval,
			SettleDelay:           defaultSettleDelay,
			StabilizeTimeout:      defaultStabilizeTimeout,
			StabilizePollInterval: defaultStabilizePollInterval,
			VideoExtensions:       []string{".mp4", ".mov", ".webm"},
			ImageExtensions:       []string{".jpg", ".jpeg", ".webp"},
			ConvertExtensions:     []string{".png"},
		},
		Transformer: Transformer{
			Executable:         defaultTransformerExecutable,
			Script:             defaultTransformerScript,
			ReferenceAsset:     defaultReferenceAsset,
			Command:            defaultTransformerCommand,
			Processors:         []string{"face_swapper", "face_enhancer"},
			TempPath:           defaultTransformerTempPath,
			ExecutionProviders: []string{"cpu"},
			FaceSelectorMode:   defaultFaceSelectorMode,
			FaceSelectorOrder:  defaultFaceSelectorOrder,
		},
		Convert: Convert{
			Quality: defaultConvertQuality,
		},
		Retry: Retry{
			MaxAttempts: defaultRetryMaxAttempts,
			Backoff:     defaultRetryBackoffSeconds,
		},
		Preflight: Preflight{
			Strict: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
