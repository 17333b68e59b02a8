package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mentor-schedule-service/pkg/response"

	"github.com/google/uuid"
)

type holder struct {
	token   string
	expires time.Time
}

// LocalLock is an in-process Locker with the same TTL semantics as RedisLock.
// It is used when Redis is disabled and only one API instance runs.
type LocalLock struct {
	mu      sync.Mutex
	held    map[string]holder
	nowFunc func() time.Time
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]holder), nowFunc: time.Now}
}

func (l *LocalLock) Lock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = holder{token: token, expires: now.Add(ttl)}

	return token, true, nil
}

func (l *LocalLock) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.held[key]; ok && h.token == token {
		delete(l.held, key)
	}

	return nil
}

func (l *LocalLock) Close() error {
	return nil
}

const retryInterval = 20 * time.Millisecond

// Acquire takes key, retrying until wait elapses. The returned release
// function must be called once the critical section is done; it only drops
// the lock if this acquisition still owns it.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (release func() error, err error) {
	const op = "lock.Acquire"

	deadline := time.Now().Add(wait)
	for {
		token, ok, err := l.Lock(ctx, key, ttl)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			return func() error {
				// The request context may already be done; the lock must still go.
				if err := l.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					return fmt.Errorf("%s: release %s: %w", op, key, err)
				}
				return nil
			}, nil
		}

		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%s: %s: %w", op, key, response.ErrLocked)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}
