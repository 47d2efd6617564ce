// Package script defines the contract between the execution engine and the
// programs it runs.
//
// A Program is what the compiler collaborator hands to the engine. The engine
// instantiates it once per live script and drives the resulting Executable
// with one Event at a time.
//
// # Checkpoints
//
// Programs must call Runtime.Checkpoint at every loop back-edge, every jump
// and every user-defined function call site. Checkpoint is a single atomic
// flag read while no stop is pending. Once a stop has been requested it
// returns ErrStopRequested, and keeps returning it on every later call.
// Callers propagate the error to the handler boundary unchanged:
//
//	for i := 0; ; i++ {
//	    if err := rt.Checkpoint(); err != nil {
//	        return err
//	    }
//	    rt.Say(0, fmt.Sprintf("Iter %d", i))
//	}
//
// The engine classifies any handler exit after a stop request as a
// cooperative stop, so a program that swallows the error gains nothing but
// the time until its next checkpoint.
package script
