package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamtrace/chainabuse-sync/internal/fetcher"
)

type countingRunner struct {
	runs atomic.Int64
	err  error
}

func (r *countingRunner) Run(context.Context) (*fetcher.RunResult, error) {
	r.runs.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return &fetcher.RunResult{}, nil
}

func TestStartFiresImmediatelyAndOnTicks(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	s, err := New(runner, 10*time.Millisecond, nil)
	require.NoError(t, err)
	require.True(t, s.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return runner.runs.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestStartDisabledWithZeroInterval(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	s, err := New(runner, 0, nil)
	require.NoError(t, err)
	require.False(t, s.Enabled())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int64(0), runner.runs.Load())
}

func TestStartToleratesInFlightRuns(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{err: fetcher.ErrAlreadyRunning}
	s, err := New(runner, 5*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return runner.runs.Load() >= 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, time.Minute, nil)
	assert.Error(t, err)
	_, err = New(&countingRunner{}, -time.Minute, nil)
	assert.Error(t, err)
}
