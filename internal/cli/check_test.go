package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scriptd/internal/script"
)

func executeCheck(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewCheckCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestCheckValidScripts(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterLua)
	writeScript(t, dir, "quiet.lua", "local x = 1")

	out, err := executeCheck(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ greeter: state_entry, touch_start")
	assert.Contains(t, out, "✓ quiet: (no handlers)")
	assert.Contains(t, out, "Check Summary: 2 ok, 0 failed")
}

func TestCheckReportsEveryFailure(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "broken.lua", brokenLua)
	writeScript(t, dir, "greeter.lua", greeterLua)
	writeScript(t, dir, "raises.lua", `error("no")`)

	out, err := executeCheck(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ greeter")
	assert.Contains(t, out, "✗ "+dir)
	assert.Contains(t, out, "✗ run raises")
	assert.Contains(t, out, "Check Summary: 1 ok, 2 failed")
}

func TestCheckChunkLoopTimesOut(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "spin.lua", "while true do end")

	out, err := executeCheck(t, "text", dir)
	require.Error(t, err)
	assert.Contains(t, out, "spin: chunk did not finish")
}

func TestCheckJSON(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "greeter.lua", greeterLua)

	out, err := executeCheck(t, "json", dir)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scripts, 1)
	got := resp.Data.Scripts[0]
	assert.Equal(t, "greeter", got.Name)
	assert.Equal(t, script.NameID("greeter").String(), got.ID)
	assert.Equal(t, []script.EventKind{script.EventStateEntry, script.EventTouchStart}, got.Handlers)
}

func TestCheckMissingDirectory(t *testing.T) {
	out, err := executeCheck(t, "text", "/nonexistent/scripts")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}
