package countdown

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hexwave/roomplay/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// noopReacquire simulates a room lock that is always immediately available.
func noopReacquire(context.Context) (func(), error) {
	return func() {}, nil
}

func TestStartFiresOnCompleteAfterDuration(t *testing.T) {
	var e Engine
	var fired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	e.Start(context.Background(), types.CountdownKindUserInitiated, 10*time.Millisecond, noopReacquire, func(context.Context) {
		fired.Store(true)
		wg.Done()
	})

	waitTimeout(t, &wg, time.Second)
	assert.True(t, fired.Load())
	assert.False(t, e.Active())
}

func TestStopSuppressesCallback(t *testing.T) {
	var e Engine
	var fired atomic.Bool

	e.Start(context.Background(), types.CountdownKindUserInitiated, 50*time.Millisecond, noopReacquire, func(context.Context) {
		fired.Store(true)
	})
	e.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
	assert.False(t, e.Active())
}

func TestStartingNewCountdownReplacesOld(t *testing.T) {
	var e Engine
	var oldFired, newFired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	e.Start(context.Background(), types.CountdownKindUserInitiated, 50*time.Millisecond, noopReacquire, func(context.Context) {
		oldFired.Store(true)
	})

	snap1, ok := e.Snapshot()
	require.True(t, ok)

	e.Start(context.Background(), types.CountdownKindAutoStart, 10*time.Millisecond, noopReacquire, func(context.Context) {
		newFired.Store(true)
		wg.Done()
	})

	snap2, ok := e.Snapshot()
	require.True(t, ok)
	assert.NotEqual(t, snap1.ID, snap2.ID)

	waitTimeout(t, &wg, time.Second)
	assert.True(t, newFired.Load())
	assert.False(t, oldFired.Load())
}

func TestStopIfKindWrongKindNoop(t *testing.T) {
	var e Engine
	var fired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)

	e.Start(context.Background(), types.CountdownKindAutoStart, 10*time.Millisecond, noopReacquire, func(context.Context) {
		fired.Store(true)
		wg.Done()
	})

	stopped := e.StopIfKind(types.CountdownKindUserInitiated)
	assert.False(t, stopped)

	waitTimeout(t, &wg, time.Second)
	assert.True(t, fired.Load())
}

func TestStopIfKindMatchingKindStops(t *testing.T) {
	var e Engine
	var fired atomic.Bool

	e.Start(context.Background(), types.CountdownKindUserInitiated, 50*time.Millisecond, noopReacquire, func(context.Context) {
		fired.Store(true)
	})

	stopped := e.StopIfKind(types.CountdownKindUserInitiated)
	assert.True(t, stopped)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestSkipToEndFiresImmediatelyAndIsAwaitable(t *testing.T) {
	var e Engine
	var fired atomic.Bool

	e.Start(context.Background(), types.CountdownKindUserInitiated, time.Hour, noopReacquire, func(context.Context) {
		fired.Store(true)
	})

	wait, ok := e.SkipToEnd()
	require.True(t, ok)
	wait()

	assert.True(t, fired.Load())
	assert.False(t, e.Active())
}

func TestSkipToEndNoActiveCountdown(t *testing.T) {
	var e Engine
	_, ok := e.SkipToEnd()
	assert.False(t, ok)
}

func TestSnapshotTimeRemainingDecreases(t *testing.T) {
	var e Engine
	e.Start(context.Background(), types.CountdownKindUserInitiated, 200*time.Millisecond, noopReacquire, func(context.Context) {})

	snap1, ok := e.Snapshot()
	require.True(t, ok)

	time.Sleep(50 * time.Millisecond)

	snap2, ok := e.Snapshot()
	require.True(t, ok)
	assert.Less(t, snap2.TimeRemaining, snap1.TimeRemaining)

	e.Stop()
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for callback")
	}
}
