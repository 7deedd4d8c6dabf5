package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/labbit-23/labbit-main-sub000/pkg/logging"
)

// ErrLockBusy means another turn for the same phone held the lock for the
// whole wait window.
var ErrLockBusy = errors.New("session: phone lock busy")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker serializes turns for one phone across API replicas.
type Locker struct {
	redis  *redis.Client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	logger *logging.Logger
}

// NewLocker returns a Redis-backed locker. With a nil client every Acquire
// succeeds immediately and the row lock alone orders turns.
func NewLocker(client *redis.Client, ttl, wait time.Duration, logger *logging.Logger) *Locker {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Locker{redis: client, ttl: ttl, wait: wait, poll: 50 * time.Millisecond, logger: logger}
}

func lockKey(phone string) string {
	return fmt.Sprintf("chat:lock:%s", phone)
}

// Acquire blocks until the phone's lock is held or the wait window passes.
// The returned release is safe to call once the turn is finished.
func (l *Locker) Acquire(ctx context.Context, phone string) (func(), error) {
	if l == nil || l.redis == nil {
		return func() {}, nil
	}
	key := lockKey(phone)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("session: acquire lock: %w", err)
		}
		if ok {
			return func() { l.release(key, token) }, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockBusy
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) release(key, token string) {
	// Release on a fresh context so a cancelled request still frees the lock.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.redis, []string{key}, token).Err(); err != nil {
		l.logger.Warn("failed to release phone lock", "key", key, "error", err)
	}
}
