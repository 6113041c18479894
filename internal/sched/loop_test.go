package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rxsink/internal/core"
)

func startLoop(t *testing.T, clk clock.Clock) *Loop {
	t.Helper()
	l := NewLoop(clk, 16)
	go func() { _ = l.Run(context.Background()) }()
	t.Cleanup(func() {
		l.Stop()
		<-l.Done()
	})
	return l
}

func TestLoopDoRunsOnLoop(t *testing.T) {
	l := startLoop(t, nil)

	var n int
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Do(context.Background(), func() { n++ }))
	}
	assert.Equal(t, 10, n)
}

func TestLoopScheduleWithMockClock(t *testing.T) {
	mock := clock.NewMock()
	l := startLoop(t, mock)

	var fired atomic.Int32
	var firedAt atomic.Int64
	l.Schedule(2*time.Second, func() {
		fired.Add(1)
		firedAt.Store(int64(l.Now()))
	})

	mock.Add(time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, fired.Load())

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2*time.Second), firedAt.Load())
}

func TestLoopCancel(t *testing.T) {
	mock := clock.NewMock()
	l := startLoop(t, mock)

	var fired atomic.Bool
	id := l.Schedule(time.Second, func() { fired.Store(true) })
	assert.True(t, l.Cancel(id))
	assert.False(t, l.Cancel(id))

	mock.Add(2 * time.Second)
	require.NoError(t, l.Do(context.Background(), func() {}))
	assert.False(t, fired.Load())
}

func TestLoopPostAfterStop(t *testing.T) {
	l := NewLoop(nil, 1)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	<-l.Done()

	assert.ErrorIs(t, l.Post(func() {}), core.ErrLoopStopped)
	assert.ErrorIs(t, l.Do(context.Background(), func() {}), core.ErrLoopStopped)
}
