// Package executortest provides a stand-in for hyperfine.
package executortest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// script honours --export-json, --prepare and the commit parameter list.
// It runs the timed command once with {commit} expanded, appending the
// command's stdout to $FAKE_HYPERFINE_LOG when set. FAKE_HYPERFINE_MODE
// selects a failure: "fail" exits 3, "empty" writes no results, "garbage"
// writes invalid JSON.
const script = `#!/bin/sh
export_path=""
commit=""
prepare=""
while [ $# -gt 1 ]; do
	case "$1" in
	--export-json) export_path="$2"; shift 2 ;;
	--prepare) prepare="$2"; shift 2 ;;
	--parameter-list)
		if [ "$2" = "commit" ]; then commit="$3"; fi
		shift 3 ;;
	--parameter-scan) shift 4 ;;
	-N) shift ;;
	--*) shift 2 ;;
	*) shift ;;
	esac
done
command="$1"
if [ -n "$commit" ]; then
	command=$(printf '%s' "$command" | sed "s|{commit}|$commit|g")
fi

case "$FAKE_HYPERFINE_MODE" in
fail)
	echo "Command terminated with non-zero exit code 1" >&2
	exit 3 ;;
empty)
	printf '{"results": []}' > "$export_path"
	exit 0 ;;
garbage)
	printf 'not json' > "$export_path"
	exit 0 ;;
esac

if [ -n "$prepare" ]; then sh -c "$prepare" || exit 4; fi
out=$(sh -c "$command")
if [ -n "$FAKE_HYPERFINE_LOG" ]; then
	printf '%s\n' "$out" >> "$FAKE_HYPERFINE_LOG"
fi
escaped=$(printf '%s' "$command" | sed 's/\\/\\\\/g; s/"/\\"/g')
printf '{"results": [{"command": "%s", "mean": 0.25, "stddev": 0.01, "times": [0.24, 0.26]}]}' "$escaped" > "$export_path"
`

// Hyperfine writes the fake tool into a temp dir and returns its path.
// Tests are skipped where it cannot run.
func Hyperfine(t testing.TB) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake hyperfine needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "hyperfine")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}
