package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		path := path
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_FailedExpectationsAreReported(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: wrong_expectations
description: "Expectations that cannot hold"
scripts:
  - name: quiet
    source: |
      function state_entry() end
steps:
  - wait_chat: {script: quiet, text: "never said", timeout: 20ms}
  - expect_running: {script: quiet, running: false}
  - stop: {script: quiet, expect: timed_out}
`))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 3)
	assert.Equal(t, []string{
		"load quiet",
		`wait_chat quiet "never said": timeout`,
		"expect_running quiet false: got true",
		"stop quiet: stopped",
		"journal quiet: loaded stop_requested stopped",
	}, result.Trace)
}

func TestRun_CompileErrorAborts(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: broken
description: "Source that does not parse"
scripts:
  - name: broken
    source: "function ("
steps:
  - sleep: 1ms
`))
	require.NoError(t, err)

	_, err = Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "script broken")
}

func TestResult_Text(t *testing.T) {
	r := newResult()
	assert.Equal(t, "", r.Text())
	r.addf("load %s", "a")
	r.addf("stop %s: %s", "a", "stopped")
	assert.Equal(t, "load a\nstop a: stopped\n", r.Text())
}
