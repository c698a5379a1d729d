package api

import (
	"errors"
	"testing"

	"spool/internal/queue"
	"spool/internal/services"
)

func TestParseDownloadRequestDefaults(t *testing.T) {
	req, err := ParseDownloadRequest(DownloadRequest{URL: "https://example.com/watch?v=abc"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Kind != queue.MediaVideo {
		t.Fatalf("kind = %s", req.Kind)
	}
	if req.StartSec != 0 || req.EndSec != 0 {
		t.Fatalf("unexpected trim window %v..%v", req.StartSec, req.EndSec)
	}
}

func TestParseDownloadRequestTrimWindow(t *testing.T) {
	req, err := ParseDownloadRequest(DownloadRequest{
		URL:        "https://example.com/v",
		FormatType: "video",
		StartTime:  "1:30",
		EndTime:    "00:02:45",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.StartSec != 90 {
		t.Fatalf("start = %v", req.StartSec)
	}
	if req.EndSec != 165 {
		t.Fatalf("end = %v", req.EndSec)
	}
}

func TestParseDownloadRequestRejections(t *testing.T) {
	tests := []struct {
		name string
		req  DownloadRequest
	}{
		{"missing url", DownloadRequest{}},
		{"bad scheme", DownloadRequest{URL: "ftp://example.com/v"}},
		{"not a url", DownloadRequest{URL: "not a url"}},
		{"unknown format type", DownloadRequest{URL: "https://example.com/v", FormatType: "hologram"}},
		{"bad start time", DownloadRequest{URL: "https://example.com/v", StartTime: "abc"}},
		{"end before start", DownloadRequest{URL: "https://example.com/v", StartTime: "2:00", EndTime: "1:00"}},
		{"end equals start", DownloadRequest{URL: "https://example.com/v", StartTime: "60", EndTime: "60"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDownloadRequest(tc.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("error = %v, want validation marker", err)
			}
		})
	}
}

func TestExternalStatusMapsFailedToError(t *testing.T) {
	if got := ExternalStatus(queue.StatusFailed); got != "error" {
		t.Fatalf("failed maps to %q", got)
	}
	if got := ExternalStatus(queue.StatusCompleted); got != "completed" {
		t.Fatalf("completed maps to %q", got)
	}
}
