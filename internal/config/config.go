package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DownloadDir string `toml:"download_dir"`
	WorkDir     string `toml:"work_dir"`
	LogDir      string `toml:"log_dir"`
	APIBind     string `toml:"api_bind"`
	APIToken    string `toml:"api_token"`
}

// Engine contains configuration for the external media extraction engine.
type Engine struct {
	Binary          string `toml:"binary"`
	CookiesFile     string `toml:"cookies_file"`
	UserAgent       string `toml:"user_agent"`
	InfoTimeout     int    `toml:"info_timeout"`
	DownloadTimeout int    `toml:"download_timeout"`
}

// FFmpeg contains configuration for the trim/convert stage.
type FFmpeg struct {
	Binary      string `toml:"binary"`
	TrimTimeout int    `toml:"trim_timeout"`
}

// Jobs contains job lifecycle and retention settings.
type Jobs struct {
	MaxConcurrent    int `toml:"max_concurrent"`
	RetentionMinutes int `toml:"retention_minutes"`
	CleanupInterval  int `toml:"cleanup_interval"`
	EventBufferSize  int `toml:"event_buffer_size"`
	PushQuietSeconds int `toml:"push_quiet_seconds"`
}

// InfoCache contains settings for the video metadata cache.
type InfoCache struct {
	TTLSeconds int `toml:"ttl_seconds"`
	MaxEntries int `toml:"max_entries"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Spool.
//
// Configuration sections by subsystem:
//   - Paths: directories and API bind address
//   - Engine: external extraction engine binary and timeouts
//   - FFmpeg: trim/convert stage binary and timeout
//   - Jobs: concurrency, retention, and event buffering
//   - InfoCache: video metadata cache TTL and size
//   - Notifications: ntfy push notification settings
//   - Workflow: daemon polling intervals
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Engine        Engine        `toml:"engine"`
	FFmpeg        FFmpeg        `toml:"ffmpeg"`
	Jobs          Jobs          `toml:"jobs"`
	InfoCache     InfoCache     `toml:"info_cache"`
	Notifications Notifications `toml:"notifications"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spool/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

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

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spool.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DownloadDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// EngineBinary returns the extraction engine executable name.
func (c *Config) EngineBinary() string {
	if binary := strings.TrimSpace(c.Engine.Binary); binary != "" {
		return binary
	}
	return "yt-dlp"
}

// FFmpegBinary returns the ffmpeg executable name used for the trim stage.
func (c *Config) FFmpegBinary() string {
	if binary := strings.TrimSpace(c.FFmpeg.Binary); binary != "" {
		return binary
	}
	return "ffmpeg"
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
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
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
