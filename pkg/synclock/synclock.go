// Package synclock provides short-lived exclusive locks keyed by string,
// used to keep two syncs of the same owner and provider from overlapping.
package synclock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned by TryLock when the key is already held.
var ErrLocked = errors.New("lock already held")

// Unlock releases a lock. Releasing an expired or foreign lock is a no-op.
type Unlock func(ctx context.Context) error

// Locker acquires non-blocking locks that expire after ttl.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// Memory is a process-local Locker.
type Memory struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	clock func() time.Time
}

// NewMemory creates an in-process locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]memoryEntry), clock: time.Now}
}

func (m *Memory) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if e, ok := m.held[key]; ok && now.Before(e.expires) {
		return nil, ErrLocked
	}

	token := uuid.New().String()
	m.held[key] = memoryEntry{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if e, ok := m.held[key]; ok && e.token == token {
			delete(m.held, key)
		}
		return nil
	}, nil
}
