package token

import (
	"sync"
	"time"
)

// RevokedSessionCache remembers signed-out sessions until their last access
// token has expired.
type RevokedSessionCache interface {
	Add(sessionID string, until time.Time) error
	IsRevoked(sessionID string) bool
	Cleanup() // Remove expired entries
}

// InMemoryRevokedSessionCache is a simple in-memory implementation
type InMemoryRevokedSessionCache struct {
	revoked map[string]time.Time
	nowTime func() time.Time
	mu      sync.RWMutex
}

func NewInMemoryRevokedSessionCache(nowTime func() time.Time) *InMemoryRevokedSessionCache {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &InMemoryRevokedSessionCache{
		revoked: make(map[string]time.Time),
		nowTime: nowTime,
	}
}

func (c *InMemoryRevokedSessionCache) Add(sessionID string, until time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[sessionID] = until
	return nil
}

func (c *InMemoryRevokedSessionCache) IsRevoked(sessionID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.revoked[sessionID]
	return exists
}

func (c *InMemoryRevokedSessionCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowTime()
	for sessionID, until := range c.revoked {
		if now.After(until) {
			delete(c.revoked, sessionID)
		}
	}
}
