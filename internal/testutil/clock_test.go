package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, int64(0), clock.Ticks())
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, int64(1), clock.Ticks())
}

func TestDeterministicClock_StrictlyIncreasing(t *testing.T) {
	clock := NewDeterministicClock()

	prev := clock.Now()
	for i := 0; i < 10; i++ {
		next := clock.Now()
		assert.True(t, next.After(prev), "tick %d: %s not after %s", i, next, prev)
		assert.Equal(t, time.Second, next.Sub(prev))
		prev = next
	}
}

func TestDeterministicClock_CustomStep(t *testing.T) {
	start := time.Date(2030, 6, 1, 12, 0, 0, 0, time.FixedZone("X", 7200))
	clock := NewDeterministicClockAt(start, time.Millisecond)

	first := clock.Now()
	assert.Equal(t, time.UTC, first.Location())
	assert.True(t, first.Equal(start))
	assert.Equal(t, start.Add(time.Millisecond).UTC(), clock.Now())
}

func TestDeterministicClock_Reset(t *testing.T) {
	clock := NewDeterministicClock()
	clock.Now()
	clock.Now()
	clock.Now()
	assert.Equal(t, int64(3), clock.Ticks())

	clock.Reset()
	assert.Equal(t, int64(0), clock.Ticks())
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClock()
	const numGoroutines = 50
	const callsPerGoroutine = 100

	var mu sync.Mutex
	seen := make(map[time.Time]bool)

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, numGoroutines*callsPerGoroutine, "every timestamp is unique")
	assert.Equal(t, int64(numGoroutines*callsPerGoroutine), clock.Ticks())
}

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("")
	assert.Equal(t, "req-000001", ids.Generate())
	assert.Equal(t, "req-000002", ids.Generate())

	custom := NewSequentialIDs("scn")
	assert.Equal(t, "scn-000001", custom.Generate())
}
