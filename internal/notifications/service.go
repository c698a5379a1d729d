package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spool/internal/config"
)

const userAgent = "Spool/0.1.0"

// Service defines the notification surface exposed to the workflow.
type Service interface {
	NotifyDownloadCompleted(ctx context.Context, title, filename string) error
	NotifyDownloadFailed(ctx context.Context, title, reason string) error
	NotifyDaemonStarted(ctx context.Context, bind string) error
	NotifyDaemonStopped(ctx context.Context) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		completion: cfg.Notifications.Completion,
		errors:     cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	completion bool
	errors     bool
}

func (n *ntfyService) NotifyDownloadCompleted(ctx context.Context, title, filename string) error {
	if !n.completion {
		return nil
	}
	title = strings.TrimSpace(title)
	message := fmt.Sprintf("Download complete: %s", title)
	if filename = strings.TrimSpace(filename); filename != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, filename)
	}
	data := payload{
		title:   "Spool - Download Complete",
		message: message,
		tags:    []string{"spool", "download", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDownloadFailed(ctx context.Context, title, reason string) error {
	if !n.errors {
		return nil
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "unknown"
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown error"
	}
	data := payload{
		title:    "Spool - Download Failed",
		message:  fmt.Sprintf("Download failed: %s\n%s", title, reason),
		tags:     []string{"spool", "download", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDaemonStarted(ctx context.Context, bind string) error {
	data := payload{
		title:   "Spool - Started",
		message: fmt.Sprintf("Daemon listening on %s", strings.TrimSpace(bind)),
		tags:    []string{"spool", "daemon", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDaemonStopped(ctx context.Context) error {
	data := payload{
		title:   "Spool - Stopped",
		message: "Daemon shut down",
		tags:    []string{"spool", "daemon", "stopped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Spool - Test",
		message:  "Notification system test",
		tags:     []string{"spool", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDownloadCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyDownloadFailed(context.Context, string, string) error    { return nil }
func (noopService) NotifyDaemonStarted(context.Context, string) error             { return nil }
func (noopService) NotifyDaemonStopped(context.Context) error                     { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
