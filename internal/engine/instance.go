package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/scriptd/internal/script"
)

// instance is one live script: its goroutine, state, mailbox and stop
// coordinator. Owned by exactly one Manager.
//
// Thread-safety model:
//   - run(), the Runtime methods and exec: instance goroutine only
//   - deliver(), requestStop(), info(): any goroutine
//   - state, fault, nonCooperative: guarded by mu
//   - journal writes: serialized by journalMu, never under mu
type instance struct {
	id      script.ID
	program script.Program
	mailbox *mailbox
	stop    *stopper
	env     *environment

	mu             sync.Mutex
	state          State
	fault          error
	nonCooperative bool

	// journalMu is held across each journal write so entries for this
	// instance land in the order they were decided.
	journalMu sync.Mutex

	// Unix nanoseconds of the last passed checkpoint. Zero if none yet.
	lastCheckpoint atomic.Int64

	timerMu  sync.Mutex
	timer    *time.Timer
	timerGen uint64
}

// environment is the manager-wide collaborator set shared by instances.
type environment struct {
	clock   *Clock
	journal Journal
	chat    ChatSink
	logger  *slog.Logger
	now     func() time.Time
}

func newInstance(id script.ID, program script.Program, env *environment) *instance {
	return &instance{
		id:      id,
		program: program,
		mailbox: newMailbox(),
		stop:    newStopper(),
		env:     env,
		state:   StateIdle,
	}
}

// deliver stamps ev and appends it to the mailbox.
func (i *instance) deliver(ev script.Event) bool {
	return i.mailbox.Enqueue(ev.Stamped(i.env.clock.Next(), i.env.now()))
}

// run is the instance goroutine. It returns only after the instance has
// reached Stopped or Faulted and released its executable.
func (i *instance) run() {
	defer i.stop.finish()
	defer i.stopTimer()

	exec, err := i.instantiate()
	if err != nil {
		i.exit(NewInstantiateError(i.id, i.program.Name(), err))
		return
	}
	defer exec.Close()

	for {
		ev, ok := i.mailbox.Next(i.stop.raised)
		if !ok {
			i.exit(nil)
			return
		}
		if !exec.Handles(ev.Kind) {
			i.env.logger.Debug("no handler, event skipped", "script", i.id, "event", ev.Kind, "seq", ev.Seq)
			continue
		}
		if !i.transition(StateRunning) {
			i.exit(nil)
			return
		}

		err := i.dispatch(exec, ev)

		// Any exit after the flag went up is a cooperative stop, whatever
		// the handler returned.
		if i.stop.requested() {
			i.exit(nil)
			return
		}
		if err != nil {
			i.exit(err)
			return
		}
		i.transition(StateIdle)
	}
}

func (i *instance) instantiate() (exec script.Executable, err error) {
	defer func() {
		if r := recover(); r != nil {
			exec, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return i.program.Instantiate(scriptRuntime{i})
}

// dispatch is the handler boundary. Panics in user code are recovered here
// and become handler faults.
func (i *instance) dispatch(exec script.Executable, ev script.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			i.env.logger.Debug("handler panic", "script", i.id, "stack", string(debug.Stack()))
			err = NewHandlerFaultError(i.id, ev.Kind, fmt.Errorf("panic: %v", r))
		}
	}()

	i.env.logger.Debug("dispatching", "script", i.id, "event", ev.Kind, "seq", ev.Seq)
	if err := exec.Handle(ev); err != nil {
		return NewHandlerFaultError(i.id, ev.Kind, err)
	}
	return nil
}

// exit moves the instance to its terminal state. fault is ignored when a
// stop was requested: the unwind may surface as any error.
func (i *instance) exit(fault error) {
	i.mailbox.Close()

	i.mu.Lock()
	from := i.state
	if i.stop.requested() || fault == nil {
		i.state = StateStopped
	} else {
		i.state = StateFaulted
		i.fault = fault
	}
	to := i.state
	i.mu.Unlock()

	if to == StateFaulted {
		i.env.logger.Warn("script faulted", "script", i.id, "program", i.program.Name(), "from", from, "error", fault)
		i.record(to.String(), fault.Error())
		return
	}
	i.env.logger.Info("script stopped", "script", i.id, "program", i.program.Name(), "from", from)
	i.record(to.String(), "")
}

// transition applies a goroutine-side state change. It fails when the
// requester has moved the instance to StopRequested in the meantime.
func (i *instance) transition(to State) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.state.canTransition(to) {
		return false
	}
	i.state = to
	return true
}

// requestStop raises the stop flag. The flag and the StopRequested state
// change together under mu, so the goroutine never observes a raised flag
// with a live state. journalMu is taken before mu is released, which orders
// the stop_requested entry before the goroutine's own exit entry without
// holding mu across the write.
// Reports whether this call raised the flag.
func (i *instance) requestStop() bool {
	i.mu.Lock()
	raised := i.stop.raise()
	entered := raised && i.state.canTransition(StateStopRequested)
	if entered {
		i.state = StateStopRequested
		i.journalMu.Lock()
	}
	i.mu.Unlock()

	if entered {
		i.env.logger.Info("stop requested", "script", i.id)
		i.write(StateStopRequested.String(), "")
		i.journalMu.Unlock()
	}

	if !raised {
		return false
	}
	i.mailbox.Close()
	i.stopTimer()
	return true
}

// markNonCooperative flags an instance whose stop wait timed out.
func (i *instance) markNonCooperative(timeout time.Duration) {
	i.mu.Lock()
	already := i.nonCooperative
	i.nonCooperative = true
	i.mu.Unlock()

	last := i.lastCheckpointTime()
	i.env.logger.Warn("script did not cooperate", "script", i.id, "timeout", timeout, "last_checkpoint", last)
	if !already {
		i.record(recordNonCooperative, fmt.Sprintf("timeout=%s", timeout))
	}
}

func (i *instance) currentState() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *instance) lastCheckpointTime() time.Time {
	ns := i.lastCheckpoint.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// info snapshots the instance for operators.
func (i *instance) info() InstanceInfo {
	i.mu.Lock()
	defer i.mu.Unlock()

	return InstanceInfo{
		ID:             i.id,
		Program:        i.program.Name(),
		State:          i.state,
		Pending:        i.mailbox.Len(),
		LastCheckpoint: i.lastCheckpointTime(),
		NonCooperative: i.nonCooperative,
		Fault:          i.fault,
	}
}

// Journal entries that are not instance states.
const (
	recordLoaded         = "loaded"
	recordNonCooperative = "non_cooperative"
	recordEvicted        = "evicted"
)

// record writes a lifecycle transition to the journal, if any. Journal
// failures are logged; they never affect the instance.
func (i *instance) record(state, detail string) {
	i.journalMu.Lock()
	defer i.journalMu.Unlock()
	i.write(state, detail)
}

// write is record with journalMu already held.
func (i *instance) write(state, detail string) {
	if i.env.journal == nil {
		return
	}
	if err := i.env.journal.RecordTransition(context.Background(), i.id, state, detail); err != nil {
		i.env.logger.Error("journal write failed", "script", i.id, "state", state, "error", err)
	}
}

// setTimer (re)arms the periodic timer. Each arm bumps timerGen so ticks
// from a replaced timer are dropped.
func (i *instance) setTimer(interval time.Duration) {
	i.timerMu.Lock()
	defer i.timerMu.Unlock()

	i.timerGen++
	if i.timer != nil {
		i.timer.Stop()
		i.timer = nil
	}
	if interval <= 0 || i.stop.requested() {
		return
	}

	gen := i.timerGen
	var tick func()
	tick = func() {
		i.timerMu.Lock()
		defer i.timerMu.Unlock()

		if gen != i.timerGen {
			return
		}
		ev := script.NewEvent(script.EventTimer).Stamped(i.env.clock.Next(), i.env.now())
		if !i.mailbox.EnqueueUnlessPending(ev) {
			i.timer = nil
			return
		}
		i.timer = time.AfterFunc(interval, tick)
	}
	i.timer = time.AfterFunc(interval, tick)
}

func (i *instance) stopTimer() {
	i.setTimer(0)
}

// scriptRuntime is the script.Runtime handed to the program. It is only used
// from the instance goroutine.
type scriptRuntime struct {
	inst *instance
}

func (r scriptRuntime) ID() script.ID {
	return r.inst.id
}

// Checkpoint is called on every loop edge, jump and call site, so it must
// stay a flag read and a timestamp store.
func (r scriptRuntime) Checkpoint() error {
	if r.inst.stop.requested() {
		return script.ErrStopRequested
	}
	r.inst.lastCheckpoint.Store(time.Now().UnixNano())
	return nil
}

func (r scriptRuntime) Sleep(d time.Duration) error {
	if err := r.Checkpoint(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	// Sleeping outside a handler, e.g. during Instantiate, leaves the state
	// alone.
	sleeping := r.inst.transition(StateSleeping)
	if !sleeping && r.inst.stop.requested() {
		return script.ErrStopRequested
	}

	t := time.NewTimer(d)
	select {
	case <-t.C:
	case <-r.inst.stop.raised:
		t.Stop()
	}

	if sleeping {
		r.inst.transition(StateRunning)
	}
	// The resume point is a checkpoint of its own.
	return r.Checkpoint()
}

func (r scriptRuntime) Say(channel int, message string) {
	if r.inst.env.chat == nil {
		return
	}
	r.inst.env.chat(ChatMessage{
		Script:  r.inst.id,
		Channel: channel,
		Message: message,
		At:      r.inst.env.now(),
	})
}

func (r scriptRuntime) SetTimer(interval time.Duration) {
	r.inst.setTimer(interval)
}

func (r scriptRuntime) Context() context.Context {
	return r.inst.stop.ctx
}
