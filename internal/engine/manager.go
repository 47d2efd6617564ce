package engine

import (
	"bytes"
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/scriptd/internal/script"
)

// DefaultStopTimeout bounds Stop when the caller passes a zero timeout.
const DefaultStopTimeout = 5 * time.Second

// Journal receives lifecycle transitions for durable diagnostics.
// Implemented by store.Store.
type Journal interface {
	RecordTransition(ctx context.Context, id script.ID, state, detail string) error
}

// ChatMessage is one line said by a script.
type ChatMessage struct {
	Script  script.ID
	Channel int
	Message string
	At      time.Time
}

// ChatSink receives outgoing chat. It is called on the speaking script's
// goroutine and must not block.
type ChatSink func(ChatMessage)

// InstanceInfo is an operator snapshot of one table entry.
type InstanceInfo struct {
	ID             script.ID
	Program        string
	State          State
	Pending        int
	LastCheckpoint time.Time
	NonCooperative bool
	Fault          error
}

// Manager owns the identity→instance table.
//
// Thread-safety model:
//   - every method is safe from any goroutine
//   - the table is only mutated under mu; a Load observes and inserts in
//     one critical section, so two concurrent loads of one ID cannot both
//     succeed
//   - blocking waits (Stop, ShutdownAll) never hold mu
type Manager struct {
	mu        sync.Mutex
	instances map[script.ID]*instance
	closed    bool

	env         *environment
	stopTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal records lifecycle transitions to j.
func WithJournal(j Journal) Option {
	return func(m *Manager) {
		m.env.journal = j
	}
}

// WithChat routes script chat to sink.
func WithChat(sink ChatSink) Option {
	return func(m *Manager) {
		m.env.chat = sink
	}
}

// WithClock stamps events from c, e.g. a clock resumed from a journal.
func WithClock(c *Clock) Option {
	return func(m *Manager) {
		m.env.clock = c
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.env.logger = l
	}
}

// WithDefaultStopTimeout sets the bound used by Stop and Restart when the
// caller passes zero.
func WithDefaultStopTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.stopTimeout = d
	}
}

// New creates an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		instances: make(map[script.ID]*instance),
		env: &environment{
			clock:  NewClock(),
			logger: slog.Default(),
			now:    time.Now,
		},
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load creates an instance for id and starts its goroutine. The instance
// receives a state_entry event first.
//
// Fails with DuplicateLoad if id is present in any state, including
// non-cooperative and faulted entries awaiting operator removal. A rejected
// Load mutates nothing.
func (m *Manager) Load(id script.ID, program script.Program) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return NewEngineClosedError(id)
	}
	if _, ok := m.instances[id]; ok {
		m.mu.Unlock()
		return NewDuplicateLoadError(id)
	}
	inst := newInstance(id, program, m.env)
	m.instances[id] = inst
	inst.deliver(script.NewEvent(script.EventStateEntry))
	// The instance is visible from here on; its journal stays locked until
	// loaded is written so no later entry overtakes it.
	inst.journalMu.Lock()
	m.mu.Unlock()

	inst.write(recordLoaded, program.Name())
	inst.journalMu.Unlock()

	m.env.logger.Info("script loaded", "script", id, "program", program.Name())
	go inst.run()
	return nil
}

// Enqueue delivers ev to id's mailbox. Safe from any goroutine.
func (m *Manager) Enqueue(id script.ID, ev script.Event) error {
	inst, ok := m.lookup(id)
	if !ok {
		return NewUnknownScriptError(id)
	}
	if !inst.deliver(ev) {
		return NewNotAcceptingError(id, inst.currentState())
	}
	return nil
}

// Stop requests a cooperative stop of id and waits up to timeout.
//
// An unknown id is success. On StopCooperative the entry is removed. On
// StopTimedOut the entry stays, flagged non-cooperative, and the returned
// error is a CooperationTimeout. Concurrent calls for one id share a
// single request and observe the same outcome.
func (m *Manager) Stop(id script.ID, timeout time.Duration) (StopOutcome, error) {
	if timeout == 0 {
		timeout = m.stopTimeout
	}
	inst, ok := m.lookup(id)
	if !ok {
		return StopCooperative, nil
	}

	inst.requestStop()
	if inst.stop.wait(timeout) == StopTimedOut {
		inst.markNonCooperative(timeout)
		return StopTimedOut, NewCooperationTimeoutError(id, timeout, inst.lastCheckpointTime())
	}

	m.remove(id, inst)
	return StopCooperative, nil
}

// Restart replaces id with a fresh instance of the same program.
func (m *Manager) Restart(id script.ID, timeout time.Duration) error {
	inst, ok := m.lookup(id)
	if !ok {
		return NewUnknownScriptError(id)
	}
	if _, err := m.Stop(id, timeout); err != nil {
		return err
	}
	return m.Load(id, inst.program)
}

// Evict drops a table entry without waiting. It is the operator's forced
// removal for non-cooperative or faulted scripts. The goroutine is not
// killed: its flag stays raised and it exits at its next checkpoint, if
// it ever reaches one. Reports whether an entry was removed.
func (m *Manager) Evict(id script.ID) bool {
	inst, ok := m.lookup(id)
	if !ok {
		return false
	}
	inst.requestStop()
	if !m.remove(id, inst) {
		return false
	}
	m.env.logger.Warn("script evicted", "script", id, "state", inst.currentState())
	inst.record(recordEvicted, "")
	return true
}

// ShutdownAll stops every instance concurrently within one total bound and
// returns the identities that failed to cooperate, sorted. Cooperating
// entries are removed; non-cooperative ones stay for diagnostics. Later
// Loads fail with EngineClosed.
func (m *Manager) ShutdownAll(timeout time.Duration) []script.ID {
	m.mu.Lock()
	m.closed = true
	insts := make([]*instance, 0, len(m.instances))
	for _, inst := range m.instances {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	m.env.logger.Info("shutting down", "scripts", len(insts), "timeout", timeout)

	// Raise every flag before waiting on any, so all instances unwind in
	// parallel.
	for _, inst := range insts {
		inst.requestStop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []script.ID
	)
	for _, inst := range insts {
		inst := inst
		g.Go(func() error {
			if inst.stop.waitContext(ctx) == StopTimedOut {
				inst.markNonCooperative(timeout)
				mu.Lock()
				failed = append(failed, inst.id)
				mu.Unlock()
				return nil
			}
			m.remove(inst.id, inst)
			return nil
		})
	}
	_ = g.Wait()

	sortIDs(failed)
	if len(failed) > 0 {
		m.env.logger.Warn("shutdown left non-cooperative scripts", "count", len(failed))
	} else {
		m.env.logger.Info("shutdown complete")
	}
	return failed
}

// IsRunning reports whether id has a live instance that has not been asked
// to stop.
func (m *Manager) IsRunning(id script.ID) bool {
	inst, ok := m.lookup(id)
	if !ok {
		return false
	}
	return inst.currentState().Live()
}

// Status snapshots one entry.
func (m *Manager) Status(id script.ID) (InstanceInfo, bool) {
	inst, ok := m.lookup(id)
	if !ok {
		return InstanceInfo{}, false
	}
	return inst.info(), true
}

// Instances snapshots every entry, sorted by ID.
func (m *Manager) Instances() []InstanceInfo {
	m.mu.Lock()
	insts := make([]*instance, 0, len(m.instances))
	for _, inst := range m.instances {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	infos := make([]InstanceInfo, len(insts))
	for n, inst := range insts {
		infos[n] = inst.info()
	}
	sort.Slice(infos, func(a, b int) bool {
		return bytes.Compare(infos[a].ID[:], infos[b].ID[:]) < 0
	})
	return infos
}

func (m *Manager) lookup(id script.ID) (*instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	return inst, ok
}

// remove deletes id only if it still maps to inst. A Restart may already
// have installed a successor.
func (m *Manager) remove(id script.ID, inst *instance) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.instances[id] != inst {
		return false
	}
	delete(m.instances, id)
	return true
}

func sortIDs(ids []script.ID) {
	sort.Slice(ids, func(a, b int) bool {
		return bytes.Compare(ids[a][:], ids[b][:]) < 0
	})
}
