package deps

import (
	"os"
	"path/filepath"
	"testing"

	"spool/internal/config"
)

func TestForConfigUsesConfiguredBinaries(t *testing.T) {
	cfg := &config.Config{}
	cfg.Engine.Binary = "/opt/tools/yt-dlp"

	reqs := ForConfig(cfg)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "/opt/tools/yt-dlp" {
		t.Fatalf("expected configured engine binary, got %q", reqs[0].Command)
	}
	if reqs[1].Command != "ffmpeg" {
		t.Fatalf("expected default ffmpeg binary, got %q", reqs[1].Command)
	}
	if !reqs[1].Optional {
		t.Fatal("expected ffmpeg requirement to be optional")
	}
}

func TestCheckResolvesAndReportsMissing(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	results := Check([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank"},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected stub binary to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available binary: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatal("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatal("expected detail message for missing binary")
	}

	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected result for blank command: %#v", results[2])
	}
}
