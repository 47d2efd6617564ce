package script

import (
	"context"
	"errors"
	"time"
)

// ErrStopRequested is the cancellation tag returned by Checkpoint and Sleep
// after a stop has been requested. Every frame between the checkpoint and
// the handler boundary must return it unchanged.
var ErrStopRequested = errors.New("script: stop requested")

// IsStopRequested reports whether err carries the cancellation tag.
func IsStopRequested(err error) bool {
	return errors.Is(err, ErrStopRequested)
}

// Runtime is the engine surface visible to one running script.
//
// All methods are called from the script's own goroutine. Checkpoint calls
// of one script therefore never overlap.
type Runtime interface {
	// ID returns the identity of the running script.
	ID() ID

	// Checkpoint returns ErrStopRequested once a stop is pending and nil
	// otherwise. It never blocks.
	Checkpoint() error

	// Sleep is the timed wait. It returns early with ErrStopRequested when a
	// stop arrives mid-wait, and checks the flag once more on resume.
	Sleep(d time.Duration) error

	// Say emits a chat message on the given channel.
	Say(channel int, message string)

	// SetTimer schedules periodic timer events for this script.
	// An interval of zero or less cancels the timer.
	SetTimer(interval time.Duration)

	// Context is cancelled at the moment a stop is requested. Backends that
	// poll a context instead of calling Checkpoint use it.
	Context() context.Context
}

// Program is a compiled script, shared by all of its instances.
type Program interface {
	// Name is a human-readable label used in logs and the journal.
	Name() string

	// Instantiate prepares per-instance state bound to rt. It runs on the
	// instance goroutine before the first event is delivered.
	Instantiate(rt Runtime) (Executable, error)
}

// Executable is one instance's view of a Program.
type Executable interface {
	// Handles reports whether the program has a handler for kind.
	Handles(kind EventKind) bool

	// Handle runs the handler for ev to completion, or until it returns
	// ErrStopRequested.
	Handle(ev Event) error

	// Close releases instance resources. Called exactly once, on the
	// instance goroutine, after the last Handle.
	Close()
}

// Call runs fn behind a call-site checkpoint. Native programs wrap every
// user-defined function call with it so recursion reaches a checkpoint on
// each frame.
func Call(rt Runtime, fn func() error) error {
	if err := rt.Checkpoint(); err != nil {
		return err
	}
	return fn()
}
