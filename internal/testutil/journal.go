package testutil

import (
	"context"
	"sync"

	"github.com/roach88/scriptd/internal/script"
)

// Transition is one entry captured by Journal.
type Transition struct {
	ScriptID script.ID
	State    string
	Detail   string
}

// Journal is an in-memory engine.Journal for tests.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Journal struct {
	mu      sync.Mutex
	entries []Transition
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// RecordTransition implements engine.Journal.
func (j *Journal) RecordTransition(_ context.Context, id script.ID, state, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, Transition{ScriptID: id, State: state, Detail: detail})
	return nil
}

// States returns the recorded states for id in order.
func (j *Journal) States(id script.ID) []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []string
	for _, e := range j.entries {
		if e.ScriptID == id {
			out = append(out, e.State)
		}
	}
	return out
}

// Count returns how many times id entered state.
func (j *Journal) Count(id script.ID, state string) int {
	n := 0
	for _, s := range j.States(id) {
		if s == state {
			n++
		}
	}
	return n
}
