package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/polyladder/internal/domain"
)

// LocalLock is an in-process domain.LockManager used when no shared lock
// backend is configured. The ttl is ignored.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocalLock returns an empty LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]bool)}
}

// Acquire takes key or fails with domain.ErrLockHeld.
func (l *LocalLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, fmt.Errorf("service/lock: %s: %w", key, domain.ErrLockHeld)
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

var _ domain.LockManager = (*LocalLock)(nil)
