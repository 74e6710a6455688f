package engine

import (
	"context"
	"maps"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wenmine/tiny-engine/internal/ir"
)

// CompileFunc produces the reference for a cache miss.
type CompileFunc func(ctx context.Context) (ir.Reference, error)

// Cache maps block names to module references.
//
// Entries are append-only: a name keeps its first successful reference until
// Clear. Concurrent misses for the same name share one in-flight compilation;
// a failed compilation stores nothing.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]ir.Reference
	flights singleflight.Group
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]ir.Reference)}
}

// GetOrCompile returns the cached reference for name, calling compile on a
// miss. Waiters give up when their own ctx is done. The compilation keeps
// the starting caller's values but not its cancellation, so other waiters
// still receive its result after that caller gives up.
func (c *Cache) GetOrCompile(ctx context.Context, name string, compile CompileFunc) (ir.Reference, error) {
	if ref, ok := c.Lookup(name); ok {
		return ref, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.flights.DoChan(name, func() (any, error) {
		// A flight that finished between Lookup and DoChan already stored.
		if ref, ok := c.Lookup(name); ok {
			return ref, nil
		}
		ref, err := compile(flightCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if existing, ok := c.entries[name]; ok {
			ref = existing
		} else {
			c.entries[name] = ref
		}
		c.mu.Unlock()
		return ref, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(ir.Reference), nil
	}
}

// Lookup returns the cached reference for name.
func (c *Cache) Lookup(name string) (ir.Reference, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.entries[name]
	return ref, ok
}

// Snapshot returns a copy of all entries.
func (c *Cache) Snapshot() map[string]ir.Reference {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.entries)
}

// Len returns the number of cached names.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry. Published modules are not released.
// Compilations in flight when Clear is called still store their result.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]ir.Reference)
}
