// Package config loads scriptd settings.
//
// Sources, lowest precedence first:
//   - built-in defaults (Default)
//   - an optional CUE file, validated against the embedded #Config schema
//   - SCRIPTD_* environment variables
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
)

//go:embed schema.cue
var schemaCUE string

// Config holds every tunable.
type Config struct {
	StopTimeout      time.Duration `env:"SCRIPTD_STOP_TIMEOUT"`
	ShutdownTimeout  time.Duration `env:"SCRIPTD_SHUTDOWN_TIMEOUT"`
	Database         string        `env:"SCRIPTD_DATABASE"`
	ScriptsDir       string        `env:"SCRIPTD_SCRIPTS_DIR"`
	LogLevel         string        `env:"SCRIPTD_LOG_LEVEL"`
	LuaCallStackSize int           `env:"SCRIPTD_LUA_CALL_STACK_SIZE"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StopTimeout:      5 * time.Second,
		ShutdownTimeout:  10 * time.Second,
		LogLevel:         "info",
		LuaCallStackSize: 256,
	}
}

// fileConfig mirrors #Config. Pointers distinguish unset from zero.
type fileConfig struct {
	StopTimeout      *string `json:"stop_timeout,omitempty"`
	ShutdownTimeout  *string `json:"shutdown_timeout,omitempty"`
	Database         *string `json:"database,omitempty"`
	ScriptsDir       *string `json:"scripts_dir,omitempty"`
	LogLevel         *string `json:"log_level,omitempty"`
	LuaCallStackSize *int    `json:"lua_call_stack_size,omitempty"`
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := applyCUE(&cfg, path, data); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyCUE validates data against #Config and copies set fields onto cfg.
func applyCUE(cfg *Config, filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}

	var fc fileConfig
	if err := v.Decode(&fc); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	if fc.StopTimeout != nil {
		d, err := time.ParseDuration(*fc.StopTimeout)
		if err != nil {
			return fmt.Errorf("stop_timeout: %w", err)
		}
		cfg.StopTimeout = d
	}
	if fc.ShutdownTimeout != nil {
		d, err := time.ParseDuration(*fc.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if fc.Database != nil {
		cfg.Database = *fc.Database
	}
	if fc.ScriptsDir != nil {
		cfg.ScriptsDir = *fc.ScriptsDir
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LuaCallStackSize != nil {
		cfg.LuaCallStackSize = *fc.LuaCallStackSize
	}
	return nil
}

// formatCUEError reports the first CUE error with its file position.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("config: %w", err)
	}
	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		pos := positions[0]
		return fmt.Errorf("config %s:%d:%d: %s", pos.Filename(), pos.Line(), pos.Column(), first.Error())
	}
	return fmt.Errorf("config: %s", first.Error())
}

// Validate checks values the environment may have set outside the schema.
func (c Config) Validate() error {
	if c.StopTimeout <= 0 {
		return fmt.Errorf("stop timeout must be positive, got %s", c.StopTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.LuaCallStackSize < 16 {
		return fmt.Errorf("lua call stack size must be at least 16, got %d", c.LuaCallStackSize)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown values map to info.
func (c Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
}
