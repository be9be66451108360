package carrier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualClockPrunesStoppedTimers(t *testing.T) {
	clock := NewManualClock(time.Time{})

	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })
	kept := false
	clock.AfterFunc(3*time.Second, func() { kept = true })

	require.True(t, timer.Stop())
	clock.Advance(2 * time.Second)

	assert.False(t, fired)
	// The stopped timer is dropped during the scan, not left behind.
	clock.mu.Lock()
	remaining := len(clock.timers)
	clock.mu.Unlock()
	assert.Equal(t, 1, remaining)

	clock.Advance(2 * time.Second)
	assert.True(t, kept)
	clock.mu.Lock()
	remaining = len(clock.timers)
	clock.mu.Unlock()
	assert.Equal(t, 0, remaining)
}

func TestManualTimerStopIsIdempotent(t *testing.T) {
	clock := NewManualClock(time.Time{})
	timer := clock.AfterFunc(time.Second, func() {})

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
}
