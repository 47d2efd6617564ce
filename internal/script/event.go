package script

import (
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// EventKind names the handler an event is delivered to.
type EventKind string

// World events a script can react to.
const (
	EventStateEntry EventKind = "state_entry"
	EventOnRez      EventKind = "on_rez"
	EventListen     EventKind = "listen"
	EventTouchStart EventKind = "touch_start"
	EventTimer      EventKind = "timer"
)

// EventKinds lists every known kind in declaration order.
var EventKinds = []EventKind{
	EventStateEntry,
	EventOnRez,
	EventListen,
	EventTouchStart,
	EventTimer,
}

// ParseEventKind maps a handler name to its EventKind.
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range EventKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Event is one world occurrence destined for a single script.
//
// Events are values. The argument list is copied on construction and only
// exposed through copying accessors, so an enqueued event cannot change.
type Event struct {
	Kind EventKind

	// Seq is the engine's logical enqueue stamp. Zero until enqueued.
	Seq int64

	// EnqueuedAt is the wall-clock enqueue time. Diagnostic only; ordering
	// always uses Seq.
	EnqueuedAt time.Time

	args []any
}

// NewEvent builds an event. String arguments are NFC normalised so handlers
// comparing chat text see one canonical form.
func NewEvent(kind EventKind, args ...any) Event {
	ev := Event{Kind: kind}
	if len(args) > 0 {
		ev.args = make([]any, len(args))
		for i, a := range args {
			if s, ok := a.(string); ok {
				a = norm.NFC.String(s)
			}
			ev.args[i] = a
		}
	}
	return ev
}

// Args returns a copy of the argument list.
func (e Event) Args() []any {
	if len(e.args) == 0 {
		return nil
	}
	out := make([]any, len(e.args))
	copy(out, e.args)
	return out
}

// NumArgs returns the number of arguments.
func (e Event) NumArgs() int {
	return len(e.args)
}

// Arg returns argument i, or nil when out of range.
func (e Event) Arg(i int) any {
	if i < 0 || i >= len(e.args) {
		return nil
	}
	return e.args[i]
}

// Stamped returns a copy of e carrying the given enqueue stamp.
func (e Event) Stamped(seq int64, at time.Time) Event {
	e.Seq = seq
	e.EnqueuedAt = at
	return e
}

func (e Event) String() string {
	return fmt.Sprintf("%s%v#%d", e.Kind, e.args, e.Seq)
}
