package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
name: minimal
description: "One script, one step"
stop_timeout: 250ms
scripts:
  - name: a
    source: "function state_entry() end"
steps:
  - sleep: 5ms
`

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, 250*time.Millisecond, time.Duration(s.StopTimeout))
	require.Len(t, s.Steps, 1)
	require.NotNil(t, s.Steps[0].Sleep)
	assert.Equal(t, 5*time.Millisecond, time.Duration(*s.Steps[0].Sleep))
}

func TestLoadScenario_SetsBaseDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, dir, s.BaseDir)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: minimal + "stepz: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: `
description: "x"
scripts: [{name: a, source: "--"}]
steps: [{sleep: 1ms}]
`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: x
scripts: [{name: a, source: "--"}]
steps: [{sleep: 1ms}]
`,
			want: "description is required",
		},
		{
			name: "no scripts",
			yaml: `
name: x
description: "x"
steps: [{sleep: 1ms}]
`,
			want: "scripts list is required",
		},
		{
			name: "no steps",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--"}]
`,
			want: "steps list is required",
		},
		{
			name: "file and source",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--", file: a.lua}]
steps: [{sleep: 1ms}]
`,
			want: "exactly one of file or source",
		},
		{
			name: "duplicate script",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--"}, {name: a, source: "--"}]
steps: [{sleep: 1ms}]
`,
			want: "duplicate name",
		},
		{
			name: "two actions in a step",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--"}]
steps: [{sleep: 1ms, stop: {script: a}}]
`,
			want: "exactly one action",
		},
		{
			name: "unknown script",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--"}]
steps: [{stop: {script: b}}]
`,
			want: `unknown script "b"`,
		},
		{
			name: "unknown event",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--"}]
steps: [{enqueue: {script: a, event: collision}}]
`,
			want: "unknown event kind",
		},
		{
			name: "bad stop expectation",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--"}]
steps: [{stop: {script: a, expect: killed}}]
`,
			want: "stop expect",
		},
		{
			name: "bad duration",
			yaml: `
name: x
description: "x"
scripts: [{name: a, source: "--"}]
steps: [{sleep: soon}]
`,
			want: "failed to parse YAML",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDuration_Or(t *testing.T) {
	assert.Equal(t, time.Second, Duration(0).Or(time.Second))
	assert.Equal(t, time.Millisecond, Duration(time.Millisecond).Or(time.Second))
}
