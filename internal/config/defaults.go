package config

const (
	defaultDownloadDir = "~/.local/share/spool/downloads"
	defaultWorkDir     = "~/.local/share/spool/work"
	defaultLogDir      = "~/.local/share/spool/logs"
	defaultAPIBind     = "127.0.0.1:8037"

	defaultInfoTimeout     = 60
	defaultDownloadTimeout = 3600
	defaultTrimTimeout     = 900

	defaultMaxConcurrent    = 2
	defaultRetentionMinutes = 60
	defaultCleanupInterval  = 300
	defaultEventBufferSize  = 500
	defaultPushQuietSeconds = 2

	defaultInfoCacheTTL        = 600
	defaultInfoCacheMaxEntries = 256

	defaultNotifyTimeout = 10

	defaultQueuePollInterval  = 1
	defaultErrorRetryInterval = 5

	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 7
)

// Default returns the baseline configuration before any file overrides are applied.
func Default() Config {
	return Config{
		Paths: Paths{
			DownloadDir: defaultDownloadDir,
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Engine: Engine{
			Binary:          "yt-dlp",
			InfoTimeout:     defaultInfoTimeout,
			DownloadTimeout: defaultDownloadTimeout,
		},
		FFmpeg: FFmpeg{
			Binary:      "ffmpeg",
			TrimTimeout: defaultTrimTimeout,
		},
		Jobs: Jobs{
			MaxConcurrent:    defaultMaxConcurrent,
			RetentionMinutes: defaultRetentionMinutes,
			CleanupInterval:  defaultCleanupInterval,
			EventBufferSize:  defaultEventBufferSize,
			PushQuietSeconds: defaultPushQuietSeconds,
		},
		InfoCache: InfoCache{
			TTLSeconds: defaultInfoCacheTTL,
			MaxEntries: defaultInfoCacheMaxEntries,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completion:     true,
			Errors:         true,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
