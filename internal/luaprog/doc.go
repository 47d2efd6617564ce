// Package luaprog runs Lua scripts under the engine's checkpoint contract.
//
// Source is parsed and compiled once by Compile into a function prototype
// that every instance shares. Each instance gets its own sandboxed
// *lua.LState with only the base, table, string and math libraries open.
//
// The interpreter is bound to the instance stop context, so the VM checks
// for a pending stop before every instruction. Loop edges, jumps and call
// sites are therefore all checkpoints, and a pcall in user code cannot keep
// a stopped script alive: the next instruction outside it raises again.
//
// Handlers are global functions named after the event kind:
//
//	function state_entry()
//	  say(0, "hello from " .. script_id())
//	  set_timer(1.5)
//	end
//
//	function timer()
//	  say(0, "tick at " .. now())
//	end
//
//	function listen(channel, name, message) end
//	function touch_start(toucher) end
package luaprog
