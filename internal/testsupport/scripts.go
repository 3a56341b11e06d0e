package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// concatScript mimics `ffmpeg -f concat -safe 0 -i <list> -c copy <out> -y`
// by appending every listed file to the output.
const concatScript = `#!/bin/sh
list=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) list="$2"; shift 2 ;;
    -f|-safe|-c) shift 2 ;;
    -y) shift ;;
    *) out="$1"; shift ;;
  esac
done
[ -n "$list" ] && [ -n "$out" ] || exit 2
: > "$out"
sed -n "s/^file '\(.*\)'$/\1/p" "$list" | while IFS= read -r f; do
  cat "$f" >> "$out" || exit 1
done
`

// WriteScript writes an executable shell script into the config's bin
// directory and returns its path.
func WriteScript(t testing.TB, baseDir, name, body string) string {
	t.Helper()

	binDir := filepath.Join(baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	path := filepath.Join(binDir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}

// WithConcatStub points the merge binary at a shell stand-in that really
// concatenates the listed segments.
func WithConcatStub() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Processing.FFmpegBinary = WriteScript(b.t, b.baseDir, "ffmpeg-concat", concatScript)
	}
}
