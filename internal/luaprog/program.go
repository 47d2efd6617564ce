package luaprog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/roach88/scriptd/internal/script"
)

// DefaultCallStackSize is the Lua call depth limit when none is configured.
const DefaultCallStackSize = 256

// Option configures a compiled Program.
type Option func(*Program)

// WithCallStackSize limits Lua call depth per instance. Non-positive values
// keep the default.
func WithCallStackSize(n int) Option {
	return func(p *Program) {
		if n > 0 {
			p.callStackSize = n
		}
	}
}

// Program is compiled Lua source. It is immutable and safe to instantiate
// from any number of goroutines.
type Program struct {
	name   string
	source string
	proto  *lua.FunctionProto

	callStackSize int
}

// Compile parses and compiles source. Syntax errors are reported with the
// chunk name.
func Compile(name, source string, opts ...Option) (*Program, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}

	p := &Program{
		name:          name,
		source:        source,
		proto:         proto,
		callStackSize: DefaultCallStackSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// CompileFile compiles the Lua file at path. The program is named after the
// file without its extension.
func CompileFile(path string, opts ...Option) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Compile(name, string(data), opts...)
}

// Name implements script.Program.
func (p *Program) Name() string {
	return p.name
}

// Source returns the text the program was compiled from.
func (p *Program) Source() string {
	return p.source
}

// Instantiate implements script.Program. It creates the sandbox, installs
// the builtins and runs the chunk body, which defines the handlers. A chunk
// body that loops forever is stoppable like any handler.
func (p *Program) Instantiate(rt script.Runtime) (script.Executable, error) {
	L := newSandbox(p.callStackSize)
	L.SetContext(&progressContext{Context: rt.Context(), rt: rt})
	installBuiltins(L, rt)

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		L.Close()
		return nil, unwind(rt.Context(), err)
	}

	x := &executable{
		L:        L,
		ctx:      rt.Context(),
		handlers: make(map[script.EventKind]*lua.LFunction),
	}
	for _, kind := range script.EventKinds {
		if fn, ok := L.GetGlobal(string(kind)).(*lua.LFunction); ok {
			x.handlers[kind] = fn
		}
	}
	return x, nil
}

// Handlers lists the event kinds the chunk defines handlers for, without
// starting an instance. The chunk body is run in a throwaway sandbox with
// inert builtins, so it must not loop at top level.
func (p *Program) Handlers(ctx context.Context) ([]script.EventKind, error) {
	L := newSandbox(p.callStackSize)
	defer L.Close()
	L.SetContext(ctx)
	installBuiltins(L, inertRuntime{ctx: ctx})

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("run %s: %w", p.name, err)
	}

	var kinds []script.EventKind
	for _, kind := range script.EventKinds {
		if _, ok := L.GetGlobal(string(kind)).(*lua.LFunction); ok {
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// executable is one instance's interpreter. It is only touched from the
// instance goroutine.
type executable struct {
	L        *lua.LState
	ctx      context.Context
	handlers map[script.EventKind]*lua.LFunction
}

func (x *executable) Handles(kind script.EventKind) bool {
	_, ok := x.handlers[kind]
	return ok
}

func (x *executable) Handle(ev script.Event) error {
	fn, ok := x.handlers[ev.Kind]
	if !ok {
		return nil
	}
	args := make([]lua.LValue, ev.NumArgs())
	for n := range args {
		args[n] = toLValue(ev.Arg(n))
	}
	err := x.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...)
	return unwind(x.ctx, err)
}

func (x *executable) Close() {
	x.L.Close()
}

// progressEvery is how many VM polls pass between recorded checkpoints.
const progressEvery = 1024

// progressContext reports VM progress to the runtime. gopher-lua polls Done
// before every instruction, so a loop that never calls a builtin still
// records a recent checkpoint. The stop itself arrives through the wrapped
// context.
type progressContext struct {
	context.Context
	rt    script.Runtime
	polls atomic.Uint32
}

func (c *progressContext) Done() <-chan struct{} {
	if c.polls.Add(1)%progressEvery == 0 {
		_ = c.rt.Checkpoint()
	}
	return c.Context.Done()
}

// unwind maps a Lua error raised by a stop back to the cancellation tag.
// The VM reports a cancelled context as a plain runtime error, and a
// builtin interrupted mid-sleep raises one of its own.
func unwind(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && script.IsStopRequested(context.Cause(ctx)) {
		return script.ErrStopRequested
	}
	return err
}
