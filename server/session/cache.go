package session

import (
	"sync"
	"time"
)

// DefaultTTL is how long a stored context stays readable. Session contexts
// are short-lived by design; an expired read behaves as "no context".
const DefaultTTL = 30 * time.Minute

// Cache stores the current session context per user. Writes overwrite
// wholesale; there is no merge semantics. Last writer wins.
type Cache struct {
	ttl time.Duration

	mu       sync.RWMutex
	contexts map[int32]*cacheEntry

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

type cacheEntry struct {
	ctx       *Context
	expiresAt time.Time
}

// NewCache creates a session context cache and starts its cleanup goroutine.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		ttl:      ttl,
		contexts: make(map[int32]*cacheEntry),
		done:     make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop()

	return c
}

// SetContext overwrites the stored context for a user and stamps UpdatedAt.
func (c *Cache) SetContext(userID int32, ctx *Context) {
	if ctx == nil {
		ctx = &Context{}
	}
	ctx.UpdatedAt = time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.contexts[userID] = &cacheEntry{
		ctx:       ctx,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// GetContext returns the stored context for a user, or nil if nothing is
// stored or the stored context has expired.
func (c *Cache) GetContext(userID int32) *Context {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.contexts[userID]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.ctx
}

// Close stops the cleanup goroutine.
func (c *Cache) Close() {
	c.once.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
}

func (c *Cache) cleanupLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *Cache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for userID, entry := range c.contexts {
		if now.After(entry.expiresAt) {
			delete(c.contexts, userID)
		}
	}
}
