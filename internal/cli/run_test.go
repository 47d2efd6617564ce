package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scriptd/internal/script"
	"github.com/roach88/scriptd/internal/store"
)

// executeRun runs the command until ctx's deadline.
func executeRun(t *testing.T, timeout time.Duration, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	// A nil slice would make cobra fall back to os.Args.
	cmd.SetArgs(append([]string{}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- cmd.ExecuteContext(ctx)
	}()

	select {
	case err := <-errChan:
		return out.String(), err
	case <-time.After(timeout + 10*time.Second):
		t.Fatal("command did not respect context timeout")
		return "", nil
	}
}

func TestRunLoadsAndStopsScripts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterLua)
	writeScript(t, dir, "spinner.lua", `
function state_entry()
  say(0, "spinning")
  while true do end
end
`)
	dbPath := filepath.Join(t.TempDir(), "scriptd.db")

	out, err := executeRun(t, 300*time.Millisecond, "--db", dbPath, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 2 script(s)")
	assert.Contains(t, out, "[greeter] ch0: hello from greeter")
	assert.Contains(t, out, "[spinner] ch0: spinning")
	assert.Contains(t, out, "All scripts stopped.")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	saved, err := st.LoadScript(ctx, script.NameID("greeter"))
	require.NoError(t, err)
	assert.Equal(t, "greeter", saved.Name)
	assert.Equal(t, greeterLua, saved.Source)

	transitions, err := st.Transitions(ctx, script.NameID("spinner"))
	require.NoError(t, err)
	states := make([]string, len(transitions))
	for n, tr := range transitions {
		states[n] = tr.State
	}
	assert.Equal(t, []string{"loaded", "stop_requested", "stopped"}, states)
}

func TestRunWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterLua)

	out, err := executeRun(t, 200*time.Millisecond, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "hello from greeter")
	assert.Contains(t, out, "All scripts stopped.")
}

func TestRunLeavesDefaultLoggerAlone(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterLua)
	before := slog.Default()

	_, err := executeRun(t, 200*time.Millisecond, dir)
	require.NoError(t, err)
	assert.Same(t, before, slog.Default())
}

func TestRunScriptsDirFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterLua)
	t.Setenv("SCRIPTD_SCRIPTS_DIR", dir)

	out, err := executeRun(t, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 1 script(s)")
}

func TestRunCommandErrors(t *testing.T) {
	emptyDir := t.TempDir()
	brokenDir := t.TempDir()
	writeScript(t, brokenDir, "broken.lua", brokenLua)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no scripts dir", []string{}, "no scripts directory"},
		{"missing dir", []string{"/nonexistent/scripts"}, "scripts directory not found"},
		{"empty dir", []string{emptyDir}, "no Lua files found"},
		{"broken script", []string{brokenDir}, "failed to compile scripts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeRun(t, time.Second, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRunBadDatabasePath(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterLua)
	dbPath := filepath.Join(t.TempDir(), "missing", "dir", "scriptd.db")

	_, err := executeRun(t, time.Second, "--db", dbPath, dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to open database")
	_, statErr := os.Stat(dbPath)
	assert.True(t, os.IsNotExist(statErr))
}
