package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ZeroRateFallsBackToOnePerMinute(t *testing.T) {
	assert.Equal(t, time.Minute, New(0).Interval())
	assert.Equal(t, time.Minute, New(-5).Interval())
}

func TestNew_Interval(t *testing.T) {
	assert.Equal(t, time.Second, New(60).Interval())
	assert.Equal(t, 500*time.Millisecond, New(120).Interval())
}

func TestWait_EnforcesMinimumSpacing(t *testing.T) {
	limiter := New(600) // 100ms interval keeps the test fast
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestWait_SerializesConcurrentCallers(t *testing.T) {
	limiter := New(1200) // 50ms interval
	ctx := context.Background()

	var mu sync.Mutex

	grants := make([]time.Time, 0, 4)

	var wg sync.WaitGroup

	for range 4 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, limiter.Wait(ctx))

			mu.Lock()
			grants = append(grants, time.Now())
			mu.Unlock()
		}()
	}

	wg.Wait()

	require.Len(t, grants, 4)

	for i := 1; i < len(grants); i++ {
		for j := range i {
			gap := grants[i].Sub(grants[j])
			if gap < 0 {
				gap = -gap
			}

			assert.GreaterOrEqual(t, gap, 40*time.Millisecond)
		}
	}
}

func TestWait_CancelledContext(t *testing.T) {
	limiter := New(1)

	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.Error(t, err)
}
