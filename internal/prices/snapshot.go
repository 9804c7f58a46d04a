// Package prices holds the latest market-rate snapshot and serves it to
// authenticated clients, filtered by their plan's scope.
//
// A snapshot is always complete: the poller builds a full replacement and
// swaps it in atomically, so readers never observe a half-updated mix of
// old and new quotes.
package prices

import (
	"sync/atomic"
	"time"
)

// Snapshot is one complete read of the upstream feed.
type Snapshot struct {
	Data        map[string]any `json:"data"`
	LastUpdated string         `json:"last_updated"`
	Status      string         `json:"status"`
	FetchedAt   time.Time      `json:"-"`
}

// StatusOK marks a healthy snapshot.
const StatusOK = "OK"

// Cache is a lock-free holder for the current snapshot.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

// NewCache creates a cache primed with an empty waiting snapshot, so
// readers before the first poll see a well-formed body instead of nil.
func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(&Snapshot{
		Data:   map[string]any{},
		Status: "Initializing",
	})
	return c
}

// Load returns the current snapshot. The returned value is shared and must
// be treated as read-only.
func (c *Cache) Load() *Snapshot {
	return c.current.Load()
}

// Store replaces the current snapshot.
func (c *Cache) Store(s *Snapshot) {
	c.current.Store(s)
}

// Age reports how long ago the current snapshot was fetched. Zero fetch
// time (nothing fetched yet) reads as a very large age.
func (c *Cache) Age(now time.Time) time.Duration {
	s := c.current.Load()
	if s.FetchedAt.IsZero() {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(s.FetchedAt)
}
