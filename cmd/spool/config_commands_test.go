package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample config: %v", err)
	}
	if !strings.Contains(string(data), "[paths]") {
		t.Fatalf("expected TOML sections in sample config, got:\n%s", data)
	}

	// Re-running without --overwrite must refuse to clobber the file.
	again := newRootCommand()
	again.SetOut(&bytes.Buffer{})
	again.SetArgs([]string{"config", "init", "--path", target})
	if err := again.Execute(); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
