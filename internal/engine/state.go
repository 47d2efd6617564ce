package engine

// State is the lifecycle position of one script instance.
type State int

const (
	// StateIdle: waiting on the mailbox.
	StateIdle State = iota
	// StateRunning: executing exactly one handler.
	StateRunning
	// StateSleeping: inside a timed wait issued by the handler.
	StateSleeping
	// StateStopRequested: the stop flag is raised; the instance will stop
	// at its next checkpoint.
	StateStopRequested
	// StateStopped is terminal. The instance never runs user code again.
	StateStopped
	// StateFaulted is terminal. User code failed unrecoverably.
	StateFaulted
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateRunning:       "running",
	StateSleeping:      "sleeping",
	StateStopRequested: "stop_requested",
	StateStopped:       "stopped",
	StateFaulted:       "faulted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFaulted
}

// Live reports whether an instance in s still accepts and runs events.
func (s State) Live() bool {
	return s == StateIdle || s == StateRunning || s == StateSleeping
}

// canTransition encodes the instance state machine. StopRequested is only
// entered by the requester; the instance goroutine only leaves it.
func (s State) canTransition(to State) bool {
	switch s {
	case StateIdle:
		return to == StateRunning || to == StateStopRequested || to == StateFaulted
	case StateRunning:
		return to == StateIdle || to == StateSleeping || to == StateStopRequested || to == StateFaulted
	case StateSleeping:
		return to == StateRunning || to == StateStopRequested
	case StateStopRequested:
		return to == StateStopped
	}
	return false
}
