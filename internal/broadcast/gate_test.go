package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendGate_PauseBlocksAllWaiters(t *testing.T) {
	g := NewSendGate(1000)
	const pause = 100 * time.Millisecond

	g.Pause(pause)
	deadline := time.Now().Add(pause)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, g.Wait(context.Background()))
			assert.False(t, time.Now().Before(deadline), "send attempted before pause elapsed")
		}()
	}
	wg.Wait()
}

func TestSendGate_PauseNeverShortens(t *testing.T) {
	g := NewSendGate(1000)
	g.Pause(100 * time.Millisecond)
	deadline := time.Now().Add(100 * time.Millisecond)
	g.Pause(10 * time.Millisecond)

	require.NoError(t, g.Wait(context.Background()))
	assert.False(t, time.Now().Before(deadline))
}

func TestSendGate_PauseReachesWaiterParkedInLimiter(t *testing.T) {
	// A worker already blocked on the steady limiter when the throttle
	// signal arrives must still honor it: no send before the pause elapses.
	g := NewSendGate(2)
	require.NoError(t, g.Wait(context.Background()))
	require.NoError(t, g.Wait(context.Background())) // burst drained

	returned := make(chan time.Time, 1)
	go func() {
		require.NoError(t, g.Wait(context.Background()))
		returned <- time.Now()
	}()

	// Let the goroutine park inside the limiter (next token is ~500ms
	// away), then signal a pause that outlasts the limiter wait.
	time.Sleep(50 * time.Millisecond)
	const pause = 1200 * time.Millisecond
	deadline := time.Now().Add(pause)
	g.Pause(pause)

	ts := <-returned
	assert.False(t, ts.Before(deadline),
		"send admitted %s before the pause elapsed", deadline.Sub(ts))
}

func TestSendGate_WaitHonorsContext(t *testing.T) {
	g := NewSendGate(1000)
	g.Pause(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, g.Wait(ctx))
}

func TestSendGate_NoPauseIsFast(t *testing.T) {
	g := NewSendGate(1000)
	start := time.Now()
	require.NoError(t, g.Wait(context.Background()))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
