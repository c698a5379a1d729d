package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"spool/internal/config"
	"spool/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyDownloadCompleted(context.Background(), "Example", "example.mp4"); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		send           func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "download completed",
			send: func(svc notifications.Service) error {
				return svc.NotifyDownloadCompleted(context.Background(), "Demo Video", "Demo Video.mp4")
			},
			expectTitle:   "Spool - Download Complete",
			expectMessage: "Download complete: Demo Video\nFile: Demo Video.mp4",
			expectTags:    "spool,download,completed",
		},
		{
			name: "download failed",
			send: func(svc notifications.Service) error {
				return svc.NotifyDownloadFailed(context.Background(), "Demo Video", "yt-dlp exited with status 1")
			},
			expectTitle:    "Spool - Download Failed",
			expectMessage:  "Download failed: Demo Video\nyt-dlp exited with status 1",
			expectTags:     "spool,download,failed",
			expectPriority: "high",
		},
		{
			name: "daemon started",
			send: func(svc notifications.Service) error {
				return svc.NotifyDaemonStarted(context.Background(), "127.0.0.1:8037")
			},
			expectTitle:   "Spool - Started",
			expectMessage: "Daemon listening on 127.0.0.1:8037",
			expectTags:    "spool,daemon,started",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.Completion = true
			cfg.Notifications.Errors = true

			svc := notifications.NewService(&cfg)
			if err := tc.send(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsSuppression(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed notification: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Completion = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyDownloadCompleted(context.Background(), "Demo", "demo.mp4"); err != nil {
		t.Fatalf("suppressed completion returned error: %v", err)
	}
	if err := svc.NotifyDownloadFailed(context.Background(), "Demo", "boom"); err != nil {
		t.Fatalf("suppressed error returned error: %v", err)
	}
}
