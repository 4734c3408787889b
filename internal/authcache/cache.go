// Package authcache holds short-lived backend credentials behind an explicit,
// injectable cache instead of hidden module state, so tests can control time.
package authcache

import (
	"sync"
	"time"
)

// Entry is a cached authentication result.
type Entry struct {
	Token  string
	Region string
}

// Cache is a single-entry TTL cache with get/set/invalidate.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entry   Entry
	set     bool
	expires time.Time
}

// Option adjusts cache construction.
type Option func(*Cache)

// WithClock replaces the expiry clock.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached entry if present and unexpired.
func (c *Cache) Get() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set || c.now().After(c.expires) {
		return Entry{}, false
	}
	return c.entry, true
}

// Set stores an entry and restarts its TTL.
func (c *Cache) Set(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = entry
	c.set = true
	c.expires = c.now().Add(c.ttl)
}

// Invalidate drops the cached entry immediately.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set = false
	c.entry = Entry{}
}
