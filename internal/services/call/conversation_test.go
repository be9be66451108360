package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockRegistrySerializesPastRelease(t *testing.T) {
	r := newLockRegistry()

	// First holder takes the lock; the call then ends, which retires the
	// entry while the lock is still held.
	unlock := r.lock("CA1")
	r.release("CA1")

	entered := make(chan struct{})
	done := make(chan struct{})
	go func() {
		u := r.lock("CA1")
		close(entered)
		u()
		close(done)
	}()

	// A webhook arriving after the release must still wait for the holder.
	select {
	case <-entered:
		t.Fatal("late handler ran while the first still held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("late handler never acquired the lock")
	}

	// Once every holder has drained, the retired entry is gone.
	r.mu.Lock()
	remaining := len(r.locks)
	r.mu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestLockRegistryReleaseWithoutHoldersDeletes(t *testing.T) {
	r := newLockRegistry()
	u := r.lock("CA2")
	u()
	r.release("CA2")

	r.mu.Lock()
	remaining := len(r.locks)
	r.mu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestConversationRegistryTurns(t *testing.T) {
	r := newConversationRegistry()
	r.begin("CA3", "7")

	require.Equal(t, 1, r.append("CA3", "assistant", "hello"))
	require.Equal(t, 2, r.append("CA3", "user", "hi"))

	history := r.history("CA3")
	require.Len(t, history, 2)
	assert.Equal(t, "assistant", history[0].Role)
	assert.Equal(t, "7", r.agentFor("CA3"))

	r.end("CA3")
	assert.Empty(t, r.history("CA3"))
	assert.Empty(t, r.agentFor("CA3"))
}
