package authcache

import (
	"testing"
	"time"
)

func TestCacheGetSet(t *testing.T) {
	t.Parallel()

	c := New(time.Minute)
	if _, ok := c.Get(); ok {
		t.Fatalf("empty cache should miss")
	}

	c.Set(Entry{Token: "tok", Region: "eu"})
	entry, ok := c.Get()
	if !ok || entry.Token != "tok" || entry.Region != "eu" {
		t.Fatalf("unexpected entry: %+v ok=%v", entry, ok)
	}
}

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	current := time.Unix(0, 0)
	c := New(time.Minute, WithClock(func() time.Time { return current }))

	c.Set(Entry{Token: "tok"})
	if _, ok := c.Get(); !ok {
		t.Fatalf("fresh entry should hit")
	}

	current = current.Add(time.Minute + time.Second)
	if _, ok := c.Get(); ok {
		t.Fatalf("expired entry should miss")
	}

	// a new set restarts the TTL from the current clock
	c.Set(Entry{Token: "tok2"})
	if entry, ok := c.Get(); !ok || entry.Token != "tok2" {
		t.Fatalf("expected refreshed entry")
	}
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	c := New(time.Minute)
	c.Set(Entry{Token: "tok"})
	c.Invalidate()
	if _, ok := c.Get(); ok {
		t.Fatalf("invalidated entry should miss")
	}
}
