package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/scriptd/internal/engine"
	"github.com/roach88/scriptd/internal/script"
)

func say(sink engine.ChatSink, id script.ID, msg string) {
	sink(engine.ChatMessage{Script: id, Message: msg, At: time.Now()})
}

func TestChatLog_ChattyScriptDoesNotHideOthers(t *testing.T) {
	log := NewChatLog()
	sink := log.Sink()
	loud, quiet := script.NewID(), script.NewID()

	for i := 0; i < 4*maxLinesPerScript; i++ {
		say(sink, loud, fmt.Sprintf("iteration %d", i))
	}
	say(sink, quiet, "Thin Lizzy")

	msg, ok := log.WaitFor(quiet, "Thin Lizzy", time.Second)
	require.True(t, ok)
	assert.Equal(t, quiet, msg.Script)
	assert.Equal(t, []string{"Thin Lizzy"}, log.Messages(quiet))
	assert.Len(t, log.Messages(loud), maxLinesPerScript)
	assert.Equal(t, 4*maxLinesPerScript+1, log.Total())
}

func TestChatLog_WaiterSeesLinesPastRetention(t *testing.T) {
	log := NewChatLog()
	sink := log.Sink()
	id := script.NewID()

	for i := 0; i < maxLinesPerScript; i++ {
		say(sink, id, "filler")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var (
		got engine.ChatMessage
		ok  bool
	)
	go func() {
		defer wg.Done()
		got, ok = log.WaitFor(id, "late line", 5*time.Second)
	}()

	// Past the per-script cap only a registered waiter can see it.
	require.Eventually(t, func() bool {
		log.mu.Lock()
		registered := len(log.waiters) == 1
		log.mu.Unlock()
		return registered
	}, time.Second, time.Millisecond)
	say(sink, id, "the late line")
	wg.Wait()

	require.True(t, ok)
	assert.Equal(t, "the late line", got.Message)
	assert.NotContains(t, log.Messages(id), "the late line")
}

func TestChatLog_WaitForTimesOut(t *testing.T) {
	log := NewChatLog()
	say(log.Sink(), script.NewID(), "hello")

	_, ok := log.WaitFor(script.NewID(), "hello", 20*time.Millisecond)
	assert.False(t, ok)

	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Empty(t, log.waiters, "timed out waiter must unregister")
}

func TestChatLog_NilIDMatchesAnySpeaker(t *testing.T) {
	log := NewChatLog()
	id := script.NewID()
	say(log.Sink(), id, "ready")

	msg, ok := log.WaitFor(script.Nil, "ready", time.Second)
	require.True(t, ok)
	assert.Equal(t, id, msg.Script)
}
