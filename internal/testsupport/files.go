package testsupport

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path (and its parents) holding size bytes of filler.
// A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, bytes.Repeat([]byte{'k'}, int(size)), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteSegments creates segment files named <stem>_segment_NNN.<format> in dir,
// one per payload, and returns their paths in order.
func WriteSegments(t testing.TB, dir, stem, format string, payloads ...string) []string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	paths := make([]string, 0, len(payloads))
	for i, payload := range payloads {
		path := filepath.Join(dir, fmt.Sprintf("%s_segment_%03d.%s", stem, i, format))
		if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
			t.Fatalf("write segment %s: %v", path, err)
		}
		paths = append(paths, path)
	}
	return paths
}
