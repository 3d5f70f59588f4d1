package validation

import "sync"

// UserCache holds users learned from USER_REGISTERED so lookups can skip the peer.
type UserCache interface {
	GetUser(id string) (*UserData, bool)
	PutUser(u UserData)
}

// MemoryUserCache is a bounded in-process UserCache. When full, new entries are dropped.
type MemoryUserCache struct {
	mu    sync.RWMutex
	max   int
	users map[string]UserData
}

func NewMemoryUserCache(max int) *MemoryUserCache {
	if max <= 0 {
		max = 10000
	}
	return &MemoryUserCache{max: max, users: make(map[string]UserData)}
}

func (c *MemoryUserCache) GetUser(id string) (*UserData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	u, ok := c.users[id]
	if !ok {
		return nil, false
	}
	return &u, true
}

func (c *MemoryUserCache) PutUser(u UserData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.users[string(u.ID)]; !exists && len(c.users) >= c.max {
		return
	}
	c.users[string(u.ID)] = u
}
