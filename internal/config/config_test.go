package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scriptd.cue")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 5*time.Second, cfg.StopTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 256, cfg.LuaCallStackSize)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
stop_timeout: "250ms"
shutdown_timeout: "1m30s"
database: "journal.db"
log_level: "debug"
lua_call_stack_size: 512
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.StopTimeout)
	assert.Equal(t, 90*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "journal.db", cfg.Database)
	assert.Equal(t, "", cfg.ScriptsDir, "unset field keeps default")
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, 512, cfg.LuaCallStackSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
stop_timeout: "2s"
scripts_dir: "from-file"
`)
	t.Setenv("SCRIPTD_STOP_TIMEOUT", "750ms")
	t.Setenv("SCRIPTD_LUA_CALL_STACK_SIZE", "64")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.StopTimeout)
	assert.Equal(t, "from-file", cfg.ScriptsDir)
	assert.Equal(t, 64, cfg.LuaCallStackSize)
}

func TestLoad_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `stop_timout: "1s"`},
		{"bad duration", `stop_timeout: "soon"`},
		{"bad level", `log_level: "chatty"`},
		{"stack too small", `lua_call_stack_size: 2`},
		{"wrong type", `database: 3`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "config")
		})
	}
}

func TestLoad_SyntaxErrorHasPosition(t *testing.T) {
	path := writeConfig(t, "stop_timeout: \"1s\"\ndatabase: [\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scriptd.cue")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	assert.Error(t, err)
}

func TestLoad_EnvValidation(t *testing.T) {
	t.Setenv("SCRIPTD_SHUTDOWN_TIMEOUT", "0s")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shutdown timeout")
}

func TestLoad_EnvParseError(t *testing.T) {
	t.Setenv("SCRIPTD_STOP_TIMEOUT", "forever")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, Config{LogLevel: in}.SlogLevel(), in)
	}
}
