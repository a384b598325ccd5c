// Package testutil provides helpers for exercising the compilation pipeline
// without the real external compiler installed.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeCompilerScript emulates the external compiler's CLI contract: it parses
// --config and --output, extracts every "source" locator from the JSON config,
// and concatenates those local files into the output file.
const fakeCompilerScript = `#!/bin/sh
config=""
output=""
while [ $# -gt 0 ]; do
  case "$1" in
    --config) config="$2"; shift 2 ;;
    --output) output="$2"; shift 2 ;;
    *) shift ;;
  esac
done
: > "$output"
grep -o '"source": *"[^"]*"' "$config" | sed 's/.*: *"//; s/"$//' | while IFS= read -r src; do
  cat "$src" >> "$output"
done
`

// failingCompilerScript emulates a compiler crash: it prints to stderr and
// exits non-zero without writing any output.
const failingCompilerScript = `#!/bin/sh
echo "fake compiler: simulated failure" >&2
exit 1
`

// silentCompilerScript exits cleanly without producing an output file.
const silentCompilerScript = `#!/bin/sh
exit 0
`

func writeScript(t *testing.T, name, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// FakeCompiler writes an executable script that satisfies the external
// compiler contract by concatenating each chunk's local source files into
// the requested output. Returns the script path.
func FakeCompiler(t *testing.T) string {
	return writeScript(t, "fake-hostlist-compiler", fakeCompilerScript)
}

// FailingCompiler writes an executable script that always fails with output
// on stderr.
func FailingCompiler(t *testing.T) string {
	return writeScript(t, "failing-hostlist-compiler", failingCompilerScript)
}

// SilentCompiler writes an executable script that exits 0 without producing
// an output file.
func SilentCompiler(t *testing.T) string {
	return writeScript(t, "silent-hostlist-compiler", silentCompilerScript)
}

// InstallFakeCompiler writes the fake compiler under the well-known binary
// name into a fresh directory and returns that directory, suitable for
// prepending to PATH so normal resolution finds it.
func InstallFakeCompiler(t *testing.T) string {
	return filepath.Dir(writeScript(t, "hostlist-compiler", fakeCompilerScript))
}

// SourceFile writes rule lines to a file under dir and returns its path.
func SourceFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing source %s: %v", name, err)
	}
	return path
}
