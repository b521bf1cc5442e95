package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hyperscope/fillsync/internal/domain"
)

// keyPrefix namespaces lock keys so the same Redis instance can serve other
// tenants without collisions.
const keyPrefix = "fillsync:lock:"

// unlockLua deletes a lock key only if its value matches the caller's
// token, so an expired-and-reacquired lock is never released by the previous
// holder.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with Redis SETNX plus a TTL.
// The TTL bounds how long a crashed holder can block other instances.
type LockManager struct {
	rdb    *redis.Client
	unlock *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:    c.rdb,
		unlock: redis.NewScript(unlockLua),
	}
}

// Acquire takes the named lock for at most ttl and returns its release
// function, or domain.ErrLockHeld when another holder owns it. The release
// function is idempotent and uses its own timeout so it still works after
// the caller's context is cancelled.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	k := keyPrefix + key

	ok, err := lm.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlock.Run(releaseCtx, lm.rdb, []string{k}, token).Err()
		})
	}, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
