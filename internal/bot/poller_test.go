// internal/bot/poller_test.go
package bot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPoller_RunsImmediatelyAndOnTicks(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller("test", 10*time.Millisecond, func(ctx context.Context) error {
		calls.Add(1)
		return nil
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	runs, _ := p.Stats()
	assert.GreaterOrEqual(t, runs, int64(3))
}

func TestPoller_SkipsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := NewPoller("slow", time.Hour, func(ctx context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}, zaptest.NewLogger(t))

	ctx := context.Background()
	require.True(t, p.trigger(ctx))
	<-started
	assert.False(t, p.trigger(ctx), "second tick overlaps the first run")

	close(release)
	p.wg.Wait()
	runs, skipped := p.Stats()
	assert.Equal(t, int64(1), runs)
	assert.Equal(t, int64(1), skipped)

	// after the run finished the next tick goes through
	release = make(chan struct{})
	close(release)
	assert.True(t, p.trigger(ctx))
	<-started
	p.wg.Wait()
}

func TestPoller_SurvivesErrorsAndPanics(t *testing.T) {
	var calls atomic.Int32
	p := NewPoller("flaky", 5*time.Millisecond, func(ctx context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("remote call failed")
		}
		return nil
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, 5*time.Millisecond)
}

func TestPoller_InvalidInterval(t *testing.T) {
	p := NewPoller("broken", 0, func(ctx context.Context) error { return nil }, zaptest.NewLogger(t))
	assert.Error(t, p.Run(context.Background()))
}
