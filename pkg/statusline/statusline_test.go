package statusline

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docker/agentcore/pkg/hooks"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script hooks are posix-only in this test suite")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRunPrefersParsedFeedback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, dir, "status.sh", `cat > /dev/null
echo '{"feedback":"main | clean"}'
`)

	runner := New(hooks.NewRunner(dir, os.Environ()))
	text, err := runner.Run(context.Background(), hooks.StatusLineConfig{Kind: hooks.KindCommand, Command: script}, dir)
	require.NoError(t, err)
	assert.Equal(t, "main | clean", text)
}

func TestRunFallsBackToTrimmedStdout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, dir, "status.sh", `cat > /dev/null
echo "  plain text  "
`)

	runner := New(hooks.NewRunner(dir, os.Environ()))
	text, err := runner.Run(context.Background(), hooks.StatusLineConfig{Kind: hooks.KindCommand, Command: script}, dir)
	require.NoError(t, err)
	assert.Equal(t, "plain text", text)
}

func TestRunDefaultTimeoutIsTwoSeconds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, dir, "status.sh", `cat > /dev/null
sleep 3
echo "too slow"
`)

	runner := New(hooks.NewRunner(dir, os.Environ()))

	start := time.Now()
	_, err := runner.Run(context.Background(), hooks.StatusLineConfig{Kind: hooks.KindCommand, Command: script}, dir)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, hooks.ErrTimeout)
	assert.Less(t, elapsed, 4*time.Second, "status line should use its own 2s default, not HookSpec's 5s default")
}

func TestRunNonZeroExitSuppresses(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := writeScript(t, dir, "status.sh", `cat > /dev/null
echo "should not show"
exit 1
`)

	runner := New(hooks.NewRunner(dir, os.Environ()))
	text, err := runner.Run(context.Background(), hooks.StatusLineConfig{Kind: hooks.KindCommand, Command: script}, dir)
	require.ErrorIs(t, err, ErrSuppressed)
	assert.Empty(t, text)
}
