package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path (and parent directories) filled with size bytes of
// filler content. A size <= 0 still writes one byte so os.Stat reports a
// non-empty artifact.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'s'}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
