package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/scriptd/internal/script"
)

// Scenario is one scripted run of the engine.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// StopTimeout is the default bound for stop and restart steps.
	StopTimeout Duration `yaml:"stop_timeout,omitempty"`

	// Scripts are loaded in order before the first step.
	Scripts []ScriptDef `yaml:"scripts"`

	// Steps run in order after loading.
	Steps []Step `yaml:"steps"`

	// BaseDir resolves relative script files. Set by LoadScenario.
	BaseDir string `yaml:"-"`
}

// ScriptDef names one Lua script, given inline or by file.
type ScriptDef struct {
	Name   string `yaml:"name"`
	File   string `yaml:"file,omitempty"`
	Source string `yaml:"source,omitempty"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	WaitChat      *WaitChatStep      `yaml:"wait_chat,omitempty"`
	Enqueue       *EnqueueStep       `yaml:"enqueue,omitempty"`
	Stop          *StopStep          `yaml:"stop,omitempty"`
	Restart       *RestartStep       `yaml:"restart,omitempty"`
	Shutdown      *ShutdownStep      `yaml:"shutdown,omitempty"`
	ExpectRunning *ExpectRunningStep `yaml:"expect_running,omitempty"`
	Sleep         *Duration          `yaml:"sleep,omitempty"`
}

// WaitChatStep waits for a script to say a line containing Text.
type WaitChatStep struct {
	Script  string   `yaml:"script"`
	Text    string   `yaml:"text"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// EnqueueStep delivers one event.
type EnqueueStep struct {
	Script string `yaml:"script"`
	Event  string `yaml:"event"`
	Args   []any  `yaml:"args,omitempty"`
}

// StopStep stops a script. Expect is "stopped" or "timed_out"; empty
// accepts either.
type StopStep struct {
	Script  string   `yaml:"script"`
	Timeout Duration `yaml:"timeout,omitempty"`
	Expect  string   `yaml:"expect,omitempty"`
}

// RestartStep replaces a script with a fresh instance.
type RestartStep struct {
	Script  string   `yaml:"script"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// ShutdownStep stops every script. ExpectFailed, when set, is the expected
// number of non-cooperative scripts.
type ShutdownStep struct {
	Timeout      Duration `yaml:"timeout,omitempty"`
	ExpectFailed *int     `yaml:"expect_failed,omitempty"`
}

// ExpectRunningStep checks Manager.IsRunning.
type ExpectRunningStep struct {
	Script  string `yaml:"script"`
	Running bool   `yaml:"running"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string: %w", node.Line, err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// Or returns d, or fallback when d is zero.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if d == 0 {
		return fallback
	}
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	scenario.BaseDir = filepath.Dir(path)
	return scenario, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Scripts) == 0 {
		return fmt.Errorf("scripts list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	names := make(map[string]bool, len(s.Scripts))
	for i, def := range s.Scripts {
		if def.Name == "" {
			return fmt.Errorf("scripts[%d]: name is required", i)
		}
		if names[def.Name] {
			return fmt.Errorf("scripts[%d]: duplicate name %q", i, def.Name)
		}
		names[def.Name] = true
		if (def.File == "") == (def.Source == "") {
			return fmt.Errorf("scripts[%d] %s: exactly one of file or source is required", i, def.Name)
		}
	}

	ref := func(i int, name string) error {
		if !names[name] {
			return fmt.Errorf("steps[%d]: unknown script %q", i, name)
		}
		return nil
	}

	for i, step := range s.Steps {
		if n := step.count(); n != 1 {
			return fmt.Errorf("steps[%d]: exactly one action is required, got %d", i, n)
		}
		var err error
		switch {
		case step.WaitChat != nil:
			err = ref(i, step.WaitChat.Script)
			if err == nil && step.WaitChat.Text == "" {
				err = fmt.Errorf("steps[%d]: wait_chat text is required", i)
			}
		case step.Enqueue != nil:
			err = ref(i, step.Enqueue.Script)
			if err == nil {
				if _, perr := script.ParseEventKind(step.Enqueue.Event); perr != nil {
					err = fmt.Errorf("steps[%d]: %w", i, perr)
				}
			}
		case step.Stop != nil:
			err = ref(i, step.Stop.Script)
			switch step.Stop.Expect {
			case "", "stopped", "timed_out":
			default:
				err = fmt.Errorf("steps[%d]: stop expect must be stopped or timed_out, got %q", i, step.Stop.Expect)
			}
		case step.Restart != nil:
			err = ref(i, step.Restart.Script)
		case step.ExpectRunning != nil:
			err = ref(i, step.ExpectRunning.Script)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s Step) count() int {
	n := 0
	for _, set := range []bool{
		s.WaitChat != nil,
		s.Enqueue != nil,
		s.Stop != nil,
		s.Restart != nil,
		s.Shutdown != nil,
		s.ExpectRunning != nil,
		s.Sleep != nil,
	} {
		if set {
			n++
		}
	}
	return n
}
