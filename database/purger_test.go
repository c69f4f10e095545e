package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePurger struct {
	mu    sync.Mutex
	calls []int64
	err   error
}

func (f *fakePurger) PurgeExpired(_ context.Context, now int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return 1, f.err
}

func (f *fakePurger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestPurger(t *testing.T) {
	var (
		fixedNow = time.UnixMilli(1_700_000_000_000)
		clock    = WithPurgeClock(func() time.Time { return fixedNow })
		newCtx   = func() context.Context {
			return context.Background()
		}
	)

	t.Run("should purge with the current time in milliseconds", func(t *testing.T) {
		// Arrange
		var (
			target = &fakePurger{}
			sut    = NewPurger(target, time.Minute, clock)
		)

		// Act
		var n, err = sut.PurgeOnce(newCtx())

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, []int64{1_700_000_000_000}, target.calls)
	})

	t.Run("should purge periodically until stopped", func(t *testing.T) {
		// Arrange
		var (
			target = &fakePurger{}
			sut    = NewPurger(target, 5*time.Millisecond, clock)
		)

		// Act
		require.NoError(t, sut.Start(newCtx()))
		assert.Eventually(t, func() bool {
			return target.callCount() >= 3
		}, time.Second, 5*time.Millisecond)
		sut.Stop()
		var afterStop = target.callCount()
		time.Sleep(20 * time.Millisecond)

		// Assert
		assert.Equal(t, afterStop, target.callCount(), "no purges after Stop")
	})

	t.Run("should fail to start when the first purge fails", func(t *testing.T) {
		// Arrange
		var (
			target = &fakePurger{err: errors.New("connection refused")}
			sut    = NewPurger(target, time.Minute, clock)
		)

		// Act
		err := sut.Start(newCtx())

		// Assert
		assert.Error(t, err)
		sut.Stop()
	})

	t.Run("should reject invalid lifecycles", func(t *testing.T) {
		// Arrange
		var (
			target   = &fakePurger{}
			sut      = NewPurger(target, time.Minute, clock)
			disabled = NewPurger(target, 0, clock)
		)
		require.NoError(t, sut.Start(newCtx()))
		t.Cleanup(sut.Stop)

		// Act
		var twice = sut.Start(newCtx())
		var zero = disabled.Start(newCtx())

		// Assert
		assert.Error(t, twice)
		assert.Error(t, zero)
	})
}
