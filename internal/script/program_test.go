package script

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flagRuntime is a Runtime whose stop flag trips after a fixed number of
// checkpoints.
type flagRuntime struct {
	budget int
	passed int
}

func (r *flagRuntime) ID() ID { return Nil }

func (r *flagRuntime) Checkpoint() error {
	if r.passed >= r.budget {
		return ErrStopRequested
	}
	r.passed++
	return nil
}

func (r *flagRuntime) Sleep(time.Duration) error { return r.Checkpoint() }
func (r *flagRuntime) Say(int, string) {}
func (r *flagRuntime) SetTimer(time.Duration) {}
func (r *flagRuntime) Context() context.Context { return context.Background() }

func TestCall_UnwindsRecursion(t *testing.T) {
	rt := &flagRuntime{budget: 100}

	var depth int
	var recurse func() error
	recurse = func() error {
		depth++
		return Call(rt, recurse)
	}

	err := Call(rt, recurse)
	assert.True(t, IsStopRequested(err))
	assert.Equal(t, 100, depth)
}

func TestIsStopRequested_ThroughWrapping(t *testing.T) {
	assert.True(t, IsStopRequested(fmt.Errorf("frame: %w", ErrStopRequested)))
	assert.False(t, IsStopRequested(errors.New("script: stop requested")))
	assert.False(t, IsStopRequested(nil))
}

func TestNativeProgram(t *testing.T) {
	var got []Event
	p := NewProgram("door", map[EventKind]HandlerFunc{
		EventTouchStart: func(rt Runtime, ev Event) error {
			got = append(got, ev)
			return nil
		},
		EventTimer: nil,
	})
	assert.Equal(t, "door", p.Name())

	exec, err := p.Instantiate(&flagRuntime{})
	require.NoError(t, err)
	defer exec.Close()

	assert.True(t, exec.Handles(EventTouchStart))
	assert.False(t, exec.Handles(EventTimer), "nil handlers are dropped")
	assert.False(t, exec.Handles(EventListen))

	require.NoError(t, exec.Handle(NewEvent(EventTouchStart, "alice")))
	require.NoError(t, exec.Handle(NewEvent(EventListen)))
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].Arg(0))
}
