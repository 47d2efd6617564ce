package luaprog

import (
	"context"
	"fmt"
	"math"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/scriptd/internal/script"
)

// installBuiltins exposes the runtime to Lua as globals.
//
//	say(channel, message)   chat out
//	sleep(seconds)          timed wait, interrupted by a stop
//	set_timer(seconds)      periodic timer events, 0 cancels
//	script_id()             identity string
//	now()                   unix time in seconds
func installBuiltins(L *lua.LState, rt script.Runtime) {
	// Every builtin passes a checkpoint on entry, which keeps the
	// instance's last-checkpoint time current for diagnostics.
	checkpoint := func(L *lua.LState) {
		if err := rt.Checkpoint(); err != nil {
			L.RaiseError("%s", err.Error())
		}
	}

	L.SetGlobal("say", L.NewFunction(func(L *lua.LState) int {
		checkpoint(L)
		channel := L.CheckInt(1)
		message := L.CheckString(2)
		rt.Say(channel, message)
		return 0
	}))

	L.SetGlobal("sleep", L.NewFunction(func(L *lua.LState) int {
		d := seconds(L, 1)
		if err := rt.Sleep(d); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))

	L.SetGlobal("set_timer", L.NewFunction(func(L *lua.LState) int {
		checkpoint(L)
		rt.SetTimer(seconds(L, 1))
		return 0
	}))

	L.SetGlobal("script_id", L.NewFunction(func(L *lua.LState) int {
		checkpoint(L)
		L.Push(lua.LString(rt.ID().String()))
		return 1
	}))

	L.SetGlobal("now", L.NewFunction(func(L *lua.LState) int {
		checkpoint(L)
		L.Push(lua.LNumber(float64(time.Now().UnixNano()) / float64(time.Second)))
		return 1
	}))
}

// seconds reads argument n as a non-negative duration in seconds.
func seconds(L *lua.LState, n int) time.Duration {
	v := float64(L.CheckNumber(n))
	if math.IsNaN(v) || v < 0 {
		L.ArgError(n, "duration must be a non-negative number of seconds")
	}
	if v > math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(v * float64(time.Second))
}

// toLValue converts an event argument. Unknown types are passed as their
// printed form.
func toLValue(v any) lua.LValue {
	switch v := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(v)
	case string:
		return lua.LString(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case script.ID:
		return lua.LString(v.String())
	case fmt.Stringer:
		return lua.LString(v.String())
	}
	return lua.LString(fmt.Sprint(v))
}

// inertRuntime backs the builtins while Handlers inspects a chunk. Nothing
// it does escapes the sandbox.
type inertRuntime struct {
	ctx context.Context
}

func (r inertRuntime) ID() script.ID { return script.Nil }
func (r inertRuntime) Checkpoint() error { return nil }
func (r inertRuntime) Sleep(time.Duration) error { return nil }
func (r inertRuntime) Say(int, string) {}
func (r inertRuntime) SetTimer(time.Duration) {}
func (r inertRuntime) Context() context.Context { return r.ctx }
