package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mentor-schedule-service/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockExclusive(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	token, ok, err := l.Lock(ctx, "mentor:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.Lock(ctx, "mentor:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held key must not be granted twice")

	_, ok, err = l.Lock(ctx, "mentor:2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, l.Unlock(ctx, "mentor:1", token))
	_, ok, err = l.Lock(ctx, "mentor:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockExpires(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	l := NewLocalLock()
	l.nowFunc = func() time.Time { return now }

	_, ok, _ := l.Lock(context.Background(), "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = l.Lock(context.Background(), "k", time.Second)
	assert.True(t, ok, "expired lock is free again")
}

func TestLateReleaseKeepsNewHolder(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	l := NewLocalLock()
	l.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	releaseA, err := Acquire(ctx, l, "k", time.Second, 0)
	require.NoError(t, err)

	// A overruns its TTL and B takes the key.
	now = now.Add(2 * time.Second)
	releaseB, err := Acquire(ctx, l, "k", time.Minute, 0)
	require.NoError(t, err)

	require.NoError(t, releaseA())

	_, ok, err := l.Lock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "A's release must not drop B's lock")

	require.NoError(t, releaseB())
	_, ok, err = l.Lock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingUnlock struct {
	*LocalLock
}

var errUnlock = errors.New("connection reset")

func (failingUnlock) Unlock(context.Context, string, string) error {
	return errUnlock
}

func TestReleaseReturnsUnlockError(t *testing.T) {
	l := failingUnlock{NewLocalLock()}

	release, err := Acquire(context.Background(), l, "k", time.Minute, 0)
	require.NoError(t, err)

	assert.ErrorIs(t, release(), errUnlock)
}

func TestAcquireTimesOut(t *testing.T) {
	l := NewLocalLock()
	ctx := context.Background()

	release, err := Acquire(ctx, l, "k", time.Minute, 0)
	require.NoError(t, err)
	defer func() { _ = release() }()

	_, err = Acquire(ctx, l, "k", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, response.ErrLocked)
}

func TestAcquireSerialises(t *testing.T) {
	l := NewLocalLock()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := Acquire(context.Background(), l, "k", time.Minute, 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			assert.NoError(t, release())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}
