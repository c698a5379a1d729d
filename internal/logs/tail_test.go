package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"spool/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "spoold.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLastLinesReturnsTrailingWindow(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	lines, cur, err := logs.LastLines(path, 2)
	if err != nil {
		t.Fatalf("last lines: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if cur.Offset == 0 {
		t.Fatal("expected cursor to advance to end of file")
	}
}

func TestLastLinesMissingFile(t *testing.T) {
	lines, cur, err := logs.LastLines(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("last lines: %v", err)
	}
	if len(lines) != 0 || cur.Offset != 0 {
		t.Fatalf("expected empty result for missing file, got %#v at %d", lines, cur.Offset)
	}
}

func TestReadFromSeesOnlyNewLines(t *testing.T) {
	path := writeLog(t, "first\n")

	_, cur, err := logs.LastLines(path, 0)
	if err != nil {
		t.Fatalf("last lines: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("second\nthird\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	lines, next, err := logs.ReadFrom(path, cur)
	if err != nil {
		t.Fatalf("read from cursor: %v", err)
	}
	if len(lines) != 2 || lines[0] != "second" || lines[1] != "third" {
		t.Fatalf("unexpected lines: %#v", lines)
	}

	again, _, err := logs.ReadFrom(path, next)
	if err != nil {
		t.Fatalf("read from advanced cursor: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no lines after catching up, got %#v", again)
	}
}

func TestReadFromClampsStaleCursor(t *testing.T) {
	path := writeLog(t, "short\n")

	lines, cur, err := logs.ReadFrom(path, logs.Cursor{Offset: 10_000})
	if err != nil {
		t.Fatalf("read with stale cursor: %v", err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines past end of file, got %#v", lines)
	}
	if cur.Offset != int64(len("short\n")) {
		t.Fatalf("expected cursor clamped to file size, got %d", cur.Offset)
	}
}

func TestFollowEmitsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")

	_, cur, err := logs.LastLines(path, 0)
	if err != nil {
		t.Fatalf("last lines: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, cur, 10*time.Millisecond, func(line string) {
			got <- line
		})
	}()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("tail me\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	select {
	case line := <-got:
		if line != "tail me" {
			t.Fatalf("unexpected line: %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for followed line")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
