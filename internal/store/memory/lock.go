package memory

import (
	"context"
	"sync"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

// LockManager is an in-process implementation of domain.LockManager. It gives
// single-flight semantics within one process only; deployments with more than
// one instance use the Redis lock instead.
type LockManager struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockManager creates an empty in-process lock manager.
func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]struct{})}
}

// Acquire takes the named lock or returns ErrLockHeld. The TTL is ignored:
// an in-process lock dies with its process, so expiry has nothing to clean up.
func (m *LockManager) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.held[key]; taken {
		return nil, domain.ErrLockHeld
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.held, key)
		})
	}, nil
}

// Verify interface compliance at compile time.
var _ domain.LockManager = (*LockManager)(nil)
