package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 30 * time.Second

// unlockScript deletes the key only when the stored token still belongs to
// this holder, so an expired lock taken over by someone else is left alone.
const unlockScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// Locker is a Redis SetNX lock. It narrows duplicate work between concurrent
// materialisation attempts; correctness never depends on it.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
}

// CartKey builds the lock key guarding order materialisation for a cart.
func CartKey(cartID string) string {
	return "lock:order:cart:" + cartID
}

// WithLock runs fn while holding the key, releasing it afterwards even when
// fn fails. Acquisition retries on a backoff until ctx is cancelled.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	backoff := l.RetryBackoff
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	token := uuid.NewString()

	for {
		acquired, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if acquired {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	// Release must not be skipped because the caller's ctx expired.
	defer func() {
		_ = l.R.Eval(context.Background(), unlockScript, []string{key}, token).Err()
	}()
	return fn(ctx)
}
