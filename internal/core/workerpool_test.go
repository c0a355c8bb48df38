package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t,
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	defer verifyNoLeaks(t)

	pool := NewWorkerPool(2, 8)
	defer pool.Stop()

	var running, peak atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- pool.SubmitAndWait(context.Background(), func(ctx context.Context) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
			})
		}()
	}

	require.Eventually(t, func() bool { return pool.ActiveJobs() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(2), peak.Load())
	assert.Equal(t, int64(4), pool.CompletedJobs())
}

func TestWorkerPool_RejectsWhenQueueFull(t *testing.T) {
	defer verifyNoLeaks(t)

	pool := NewWorkerPool(1, 1)
	defer pool.Stop()

	release := make(chan struct{})
	done := make(chan error, 2)
	go func() {
		done <- pool.SubmitAndWait(context.Background(), func(ctx context.Context) { <-release })
	}()
	require.Eventually(t, func() bool { return pool.ActiveJobs() == 1 }, time.Second, 5*time.Millisecond)
	go func() {
		done <- pool.SubmitAndWait(context.Background(), func(ctx context.Context) {})
	}()
	require.Eventually(t, func() bool { return pool.QueueLength() == 1 }, time.Second, 5*time.Millisecond)

	err := pool.SubmitAndWait(context.Background(), func(ctx context.Context) {
		t.Error("rejected job must not run")
	})
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, int64(1), pool.RejectedJobs())

	close(release)
	assert.NoError(t, <-done)
	assert.NoError(t, <-done)
}

func TestWorkerPool_CallerContextCancelled(t *testing.T) {
	defer verifyNoLeaks(t)

	pool := NewWorkerPool(1, 1)
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	err := make(chan error, 1)
	go func() {
		err <- pool.SubmitAndWait(ctx, func(context.Context) {
			close(started)
			<-release
		})
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-err, context.Canceled)
	close(release)
}

func TestWorkerPool_SkipsCancelledJobs(t *testing.T) {
	defer verifyNoLeaks(t)

	pool := NewWorkerPool(1, 1)
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pool.SubmitAndWait(ctx, func(context.Context) {
		t.Error("cancelled job must not run")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerPool_RecoversFromPanic(t *testing.T) {
	defer verifyNoLeaks(t)

	pool := NewWorkerPool(1, 1)
	defer pool.Stop()

	err := pool.SubmitAndWait(context.Background(), func(ctx context.Context) { panic("boom") })
	assert.ErrorContains(t, err, "job panicked: boom")

	ran := false
	err = pool.SubmitAndWait(context.Background(), func(ctx context.Context) { ran = true })
	assert.NoError(t, err)
	assert.True(t, ran, "pool must keep working after a panic")
}

func TestWorkerPool_Stop(t *testing.T) {
	defer verifyNoLeaks(t)

	pool := NewWorkerPool(3, 3)
	pool.Stop()
	pool.Stop()

	err := pool.SubmitAndWait(context.Background(), func(ctx context.Context) {})
	assert.True(t, errors.Is(err, ErrPoolStopped), "got %v", err)
}

func TestWorkerPool_ClampsSettings(t *testing.T) {
	pool := NewWorkerPool(0, -1)
	defer pool.Stop()

	assert.Equal(t, 1, pool.Workers())
	assert.Equal(t, 0, pool.QueueCapacity())
}
