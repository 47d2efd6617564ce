// Package harness runs YAML scenarios against a real engine.Manager and
// produces a deterministic text trace for golden comparison.
//
// # Scenario Format
//
//	name: stop_tight_loop
//	description: "A looping script stops within the bound"
//	stop_timeout: 2s
//	scripts:
//	  - name: looper
//	    file: ../scripts/looper.lua   # relative to the scenario file
//	  - name: inline
//	    source: |
//	      function touch_start(who) say(0, "hi " .. who) end
//	steps:
//	  - wait_chat: {script: looper, text: "Thin Lizzy"}
//	  - enqueue: {script: inline, event: touch_start, args: [Phil]}
//	  - stop: {script: looper, expect: stopped}
//	  - expect_running: {script: looper, running: false}
//	  - restart: {script: inline}
//	  - sleep: 10ms
//	  - shutdown: {expect_failed: 0}
//
// Every script is loaded before the first step, in declaration order.
//
// # Trace
//
// The trace has one line per load and step, then one journal line per
// script listing its recorded transitions. Chat is not traced: looping
// scripts say a nondeterministic number of lines before they stop. Only
// wait_chat observes chat, and it records just whether the line arrived.
//
// Each scenario runs with a fresh in-memory store as the journal. Any
// script still live after the last step is stopped with ShutdownAll before
// the journal is read, so every journal ends in a terminal state.
package harness
