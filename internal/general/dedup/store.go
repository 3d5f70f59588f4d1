package dedup

import (
	"context"
	"sync"
	"time"
)

// Store remembers which event keys were already applied.
type Store interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

const (
	DefaultTTL  = 24 * time.Hour
	sweepEveryN = 1024
)

// Memory is a process-local Store with per-key expiry.
type Memory struct {
	mu    sync.Mutex
	ttl   time.Duration
	seen  map[string]time.Time
	marks int
	now   func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, seen: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.seen[key]
	if !ok {
		return false, nil
	}
	if m.now().After(exp) {
		delete(m.seen, key)
		return false, nil
	}
	return true, nil
}

func (m *Memory) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.seen[key] = now.Add(m.ttl)
	m.marks++
	if m.marks%sweepEveryN == 0 {
		for k, exp := range m.seen {
			if now.After(exp) {
				delete(m.seen, k)
			}
		}
	}
	return nil
}

// Len reports the number of keys currently held, expired or not.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
