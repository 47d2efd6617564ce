package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/scriptd/internal/engine"
	"github.com/roach88/scriptd/internal/luaprog"
	"github.com/roach88/scriptd/internal/script"
	"github.com/roach88/scriptd/internal/store"
	"github.com/roach88/scriptd/internal/testutil"
)

const (
	defaultStopTimeout     = 5 * time.Second
	defaultWaitChatTimeout = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// Result is the outcome of one scenario run.
type Result struct {
	// Pass is true when every step expectation held.
	Pass bool

	// Trace is the deterministic step log followed by per-script journals.
	Trace []string

	// Errors lists failed expectations. Empty when Pass is true.
	Errors []string
}

func newResult() *Result {
	return &Result{Pass: true, Trace: []string{}, Errors: []string{}}
}

func (r *Result) addf(format string, args ...any) {
	r.Trace = append(r.Trace, fmt.Sprintf(format, args...))
}

func (r *Result) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Text renders the trace, one line each, newline terminated.
func (r *Result) Text() string {
	if len(r.Trace) == 0 {
		return ""
	}
	return strings.Join(r.Trace, "\n") + "\n"
}

// Option configures Run.
type Option func(*runner)

// WithLogger routes engine logs to l. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(r *runner) {
		r.logger = l
	}
}

type runner struct {
	scenario *Scenario
	logger   *slog.Logger

	mgr     *engine.Manager
	journal *store.Store
	chat    *testutil.ChatLog
	ids     map[string]script.ID
	shut    bool
}

// Run loads the scenario's scripts into a fresh manager and executes its
// steps. An error is returned only when the scenario cannot run at all;
// failed expectations are reported on the Result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	r := &runner{
		scenario: scenario,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		chat:     testutil.NewChatLog(),
		ids:      make(map[string]script.ID, len(scenario.Scripts)),
	}
	for _, opt := range opts {
		opt(r)
	}

	programs, err := r.compile()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()
	r.journal = st

	r.mgr = engine.New(
		engine.WithJournal(st),
		engine.WithChat(r.chat.Sink()),
		engine.WithLogger(r.logger),
		engine.WithDefaultStopTimeout(scenario.StopTimeout.Or(defaultStopTimeout)),
	)

	result := newResult()
	for _, def := range scenario.Scripts {
		id := r.ids[def.Name]
		if err := r.mgr.Load(id, programs[def.Name]); err != nil {
			return nil, fmt.Errorf("load %s: %w", def.Name, err)
		}
		result.addf("load %s", def.Name)
	}

	for i, step := range scenario.Steps {
		r.step(i, step, result)
	}

	if !r.shut {
		if failed := r.mgr.ShutdownAll(defaultShutdownTimeout); len(failed) > 0 {
			result.fail("final shutdown: %d scripts did not cooperate", len(failed))
		}
	}

	if err := r.appendJournals(result); err != nil {
		return nil, err
	}
	return result, nil
}

// compile builds every program and assigns stable identities derived from
// the scenario and script names.
func (r *runner) compile() (map[string]*luaprog.Program, error) {
	programs := make(map[string]*luaprog.Program, len(r.scenario.Scripts))
	for _, def := range r.scenario.Scripts {
		var (
			p   *luaprog.Program
			err error
		)
		if def.File != "" {
			path := def.File
			if !filepath.IsAbs(path) && r.scenario.BaseDir != "" {
				path = filepath.Join(r.scenario.BaseDir, path)
			}
			p, err = luaprog.CompileFile(path)
		} else {
			p, err = luaprog.Compile(def.Name, def.Source)
		}
		if err != nil {
			return nil, fmt.Errorf("script %s: %w", def.Name, err)
		}
		programs[def.Name] = p
		r.ids[def.Name] = script.NameID(r.scenario.Name + "/" + def.Name)
	}
	return programs, nil
}

func (r *runner) step(i int, step Step, result *Result) {
	switch {
	case step.WaitChat != nil:
		s := step.WaitChat
		if _, ok := r.chat.WaitFor(r.ids[s.Script], s.Text, s.Timeout.Or(defaultWaitChatTimeout)); !ok {
			result.addf("wait_chat %s %q: timeout", s.Script, s.Text)
			result.fail("steps[%d]: %s never said %q", i, s.Script, s.Text)
			return
		}
		result.addf("wait_chat %s %q: ok", s.Script, s.Text)

	case step.Enqueue != nil:
		s := step.Enqueue
		kind, _ := script.ParseEventKind(s.Event)
		ev := script.NewEvent(kind, s.Args...)
		if err := r.mgr.Enqueue(r.ids[s.Script], ev); err != nil {
			result.addf("enqueue %s %s %v: %s", s.Script, s.Event, s.Args, errorCode(err))
			return
		}
		result.addf("enqueue %s %s %v: ok", s.Script, s.Event, s.Args)

	case step.Stop != nil:
		s := step.Stop
		outcome, _ := r.mgr.Stop(r.ids[s.Script], time.Duration(s.Timeout))
		result.addf("stop %s: %s", s.Script, outcome)
		if s.Expect != "" && outcome.String() != s.Expect {
			result.fail("steps[%d]: stop %s = %s, want %s", i, s.Script, outcome, s.Expect)
		}

	case step.Restart != nil:
		s := step.Restart
		if err := r.mgr.Restart(r.ids[s.Script], time.Duration(s.Timeout)); err != nil {
			result.addf("restart %s: %s", s.Script, errorCode(err))
			result.fail("steps[%d]: restart %s: %v", i, s.Script, err)
			return
		}
		result.addf("restart %s: ok", s.Script)

	case step.Shutdown != nil:
		s := step.Shutdown
		failed := r.mgr.ShutdownAll(s.Timeout.Or(defaultShutdownTimeout))
		r.shut = true
		result.addf("shutdown: %d non-cooperative", len(failed))
		if s.ExpectFailed != nil && len(failed) != *s.ExpectFailed {
			result.fail("steps[%d]: shutdown left %d non-cooperative, want %d", i, len(failed), *s.ExpectFailed)
		}

	case step.ExpectRunning != nil:
		s := step.ExpectRunning
		got := r.mgr.IsRunning(r.ids[s.Script])
		if got != s.Running {
			result.addf("expect_running %s %t: got %t", s.Script, s.Running, got)
			result.fail("steps[%d]: running(%s) = %t, want %t", i, s.Script, got, s.Running)
			return
		}
		result.addf("expect_running %s %t: ok", s.Script, s.Running)

	case step.Sleep != nil:
		time.Sleep(time.Duration(*step.Sleep))
		result.addf("sleep %s", step.Sleep)
	}
}

func (r *runner) appendJournals(result *Result) error {
	for _, def := range r.scenario.Scripts {
		history, err := r.journal.Transitions(context.Background(), r.ids[def.Name])
		if err != nil {
			return fmt.Errorf("read journal for %s: %w", def.Name, err)
		}
		states := make([]string, len(history))
		for i, tr := range history {
			states[i] = tr.State
		}
		result.addf("journal %s: %s", def.Name, strings.Join(states, " "))
	}
	return nil
}

// errorCode reduces an engine error to its stable code for the trace.
func errorCode(err error) string {
	switch {
	case engine.IsNotAccepting(err):
		return string(engine.ErrCodeNotAccepting)
	case engine.IsUnknownScript(err):
		return string(engine.ErrCodeUnknownScript)
	case engine.IsCooperationTimeout(err):
		return string(engine.ErrCodeCooperationTimeout)
	case engine.IsDuplicateLoad(err):
		return string(engine.ErrCodeDuplicateLoad)
	case engine.IsEngineClosed(err):
		return string(engine.ErrCodeEngineClosed)
	}
	return "error"
}
