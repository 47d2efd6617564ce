package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/scriptd/internal/script"
)

// StopOutcome is the result of a bounded stop wait.
type StopOutcome int

const (
	// StopCooperative: the instance reached a checkpoint and exited, or had
	// no live instance to begin with.
	StopCooperative StopOutcome = iota
	// StopTimedOut: the wait bound elapsed first. The flag stays raised.
	StopTimedOut
)

func (o StopOutcome) String() string {
	switch o {
	case StopCooperative:
		return "stopped"
	case StopTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// stopper is the per-instance half of the stop coordinator.
//
// flag is the only state shared between requesters and the running script.
// It is raised at most once; every requester after the first joins the
// outstanding request by waiting on the same done channel.
type stopper struct {
	flag   atomic.Bool
	once   sync.Once
	raised chan struct{} // closed when flag is raised
	done   chan struct{} // closed when the instance goroutine has exited
	exit   sync.Once

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func newStopper() *stopper {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &stopper{
		raised: make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// raise sets the flag and cancels the stop context. It reports whether
// this call was the one that raised it.
func (s *stopper) raise() bool {
	first := false
	s.once.Do(func() {
		s.flag.Store(true)
		s.cancel(script.ErrStopRequested)
		close(s.raised)
		first = true
	})
	return first
}

// requested is the checkpoint read.
func (s *stopper) requested() bool {
	return s.flag.Load()
}

// finish signals that the instance goroutine has exited.
func (s *stopper) finish() {
	s.exit.Do(func() {
		close(s.done)
		// Release the context even if no stop was ever requested, e.g.
		// after a fault.
		s.cancel(context.Canceled)
	})
}

// exited reports whether the instance goroutine is gone.
func (s *stopper) exited() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// wait blocks until the instance exits or timeout elapses.
func (s *stopper) wait(timeout time.Duration) StopOutcome {
	if s.exited() {
		return StopCooperative
	}
	if timeout <= 0 {
		return StopTimedOut
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-s.done:
		return StopCooperative
	case <-t.C:
		return StopTimedOut
	}
}

// waitContext is wait with a caller-owned deadline, for shutdown sweeps
// sharing one bound across many instances.
func (s *stopper) waitContext(ctx context.Context) StopOutcome {
	if s.exited() {
		return StopCooperative
	}
	select {
	case <-s.done:
		return StopCooperative
	case <-ctx.Done():
		return StopTimedOut
	}
}
