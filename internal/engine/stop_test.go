package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/scriptd/internal/script"
)

func TestStopper_RaiseOnce(t *testing.T) {
	s := newStopper()
	assert.False(t, s.requested())

	const callers = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		firsts int
	)
	for c := 0; c < callers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.raise() {
				mu.Lock()
				firsts++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, firsts)
	assert.True(t, s.requested())
	select {
	case <-s.raised:
	default:
		t.Fatal("raised channel not closed")
	}
}

func TestStopper_RaiseCancelsContextWithTag(t *testing.T) {
	s := newStopper()
	assert.NoError(t, s.ctx.Err())

	s.raise()
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
	assert.True(t, errors.Is(context.Cause(s.ctx), script.ErrStopRequested))
}

func TestStopper_FinishWithoutRaiseReleasesContext(t *testing.T) {
	s := newStopper()
	s.finish()
	s.finish()

	assert.True(t, s.exited())
	assert.ErrorIs(t, s.ctx.Err(), context.Canceled)
	assert.False(t, script.IsStopRequested(context.Cause(s.ctx)))
}

func TestStopper_Wait(t *testing.T) {
	s := newStopper()
	assert.Equal(t, StopTimedOut, s.wait(10*time.Millisecond))
	assert.Equal(t, StopTimedOut, s.wait(0))

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.finish()
	}()
	assert.Equal(t, StopCooperative, s.wait(time.Second))
	assert.Equal(t, StopCooperative, s.wait(0), "already exited")
}

func TestStopper_WaitContext(t *testing.T) {
	s := newStopper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, StopTimedOut, s.waitContext(ctx))

	s.finish()
	assert.Equal(t, StopCooperative, s.waitContext(ctx), "exit beats an expired deadline")
}

func TestStopOutcome_String(t *testing.T) {
	assert.Equal(t, "stopped", StopCooperative.String())
	assert.Equal(t, "timed_out", StopTimedOut.String())
	assert.Equal(t, "unknown", StopOutcome(9).String())
}
