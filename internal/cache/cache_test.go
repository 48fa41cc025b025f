package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeTTL(t *testing.T) {
	clock := clockwork.NewFakeClock()
	c := New(clock)

	var calls int
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	v, hit, err := c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, v)

	v, hit, err = c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, v)

	// An expired entry is never served.
	clock.Advance(time.Minute)
	v, hit, err = c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, v)
}

func TestGetOrComputeCoalesces(t *testing.T) {
	c := New(clockwork.NewRealClock())

	var calls atomic.Int64
	release := make(chan struct{})
	compute := func() (any, error) {
		calls.Add(1)
		<-release
		return "result", nil
	}

	const n = 16
	var wg sync.WaitGroup
	results := make([]any, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrCompute("k", time.Minute, compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give the goroutines a moment to pile onto the flight, then let the
	// single computation finish.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "result", v)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c := New(clockwork.NewRealClock())

	var calls int
	boom := errors.New("warehouse unavailable")
	compute := func() (any, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return "ok", nil
	}

	_, _, err := c.GetOrCompute("k", time.Minute, compute)
	require.ErrorIs(t, err, boom)

	v, hit, err := c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "ok", v)
}

func TestInvalidate(t *testing.T) {
	c := New(clockwork.NewRealClock())

	var calls int
	compute := func() (any, error) {
		calls++
		return calls, nil
	}

	_, _, _ = c.GetOrCompute("k", time.Minute, compute)
	c.Invalidate("k")
	v, hit, err := c.GetOrCompute("k", time.Minute, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, v)
}
