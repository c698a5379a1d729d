package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.DownloadDir, err = expandPath(c.Paths.DownloadDir); err != nil {
		return err
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Engine.CookiesFile != "" {
		if c.Engine.CookiesFile, err = expandPath(c.Engine.CookiesFile); err != nil {
			return err
		}
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	c.Engine.Binary = strings.TrimSpace(c.Engine.Binary)
	c.Engine.UserAgent = strings.TrimSpace(c.Engine.UserAgent)
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}
