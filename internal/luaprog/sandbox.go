package luaprog

import (
	lua "github.com/yuin/gopher-lua"
)

// unsafeGlobals are removed after OpenBase. They reach the filesystem, load
// unchecked code or stall the collector.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "collectgarbage", "require"}

// newSandbox creates an interpreter with only the safe standard libraries.
// The caller owns the state and must Close it.
func newSandbox(callStackSize int) *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       callStackSize,
		MinimizeStackMemory: true,
	})

	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)

	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
