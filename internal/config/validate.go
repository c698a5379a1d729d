package config

import (
	"fmt"
	"strings"
)

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.DownloadDir == "" {
		problems = append(problems, "paths.download_dir must not be empty")
	}
	if c.Paths.WorkDir == "" {
		problems = append(problems, "paths.work_dir must not be empty")
	}
	if c.Paths.LogDir == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if c.Paths.APIBind == "" {
		problems = append(problems, "paths.api_bind must not be empty")
	}
	if c.Engine.InfoTimeout <= 0 {
		problems = append(problems, "engine.info_timeout must be positive")
	}
	if c.Engine.DownloadTimeout <= 0 {
		problems = append(problems, "engine.download_timeout must be positive")
	}
	if c.FFmpeg.TrimTimeout <= 0 {
		problems = append(problems, "ffmpeg.trim_timeout must be positive")
	}
	if c.Jobs.MaxConcurrent <= 0 {
		problems = append(problems, "jobs.max_concurrent must be positive")
	}
	if c.Jobs.RetentionMinutes <= 0 {
		problems = append(problems, "jobs.retention_minutes must be positive")
	}
	if c.Jobs.CleanupInterval <= 0 {
		problems = append(problems, "jobs.cleanup_interval must be positive")
	}
	if c.Jobs.EventBufferSize <= 0 {
		problems = append(problems, "jobs.event_buffer_size must be positive")
	}
	if c.Jobs.PushQuietSeconds < 0 {
		problems = append(problems, "jobs.push_quiet_seconds must not be negative")
	}
	if c.InfoCache.TTLSeconds <= 0 {
		problems = append(problems, "info_cache.ttl_seconds must be positive")
	}
	if c.InfoCache.MaxEntries <= 0 {
		problems = append(problems, "info_cache.max_entries must be positive")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		problems = append(problems, "workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		problems = append(problems, "workflow.error_retry_interval must be positive")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q must be console or json", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be debug, info, warn, or error", c.Logging.Level))
	}
	if c.Logging.RetentionDays <= 0 {
		problems = append(problems, "logging.retention_days must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
