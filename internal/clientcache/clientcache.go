// Package clientcache keeps provider clients alive for the life of the
// process, keyed by the credential they were built with.
//
// A client is rebuilt only when the credential changes, which happens when an
// administrator rotates a key. Superseded entries are evicted once the cache
// holds more than its capacity.
package clientcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

const defaultCapacity = 4

// Cache maps credentials to clients of type T. It is safe for concurrent use.
type Cache[T any] struct {
	capacity int

	mu      sync.Mutex
	entries map[string]T
	order   []string
}

// New creates a cache holding at most capacity clients. A non-positive
// capacity uses the default of 4.
func New[T any](capacity int) *Cache[T] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Cache[T]{
		capacity: capacity,
		entries:  make(map[string]T),
	}
}

// Get returns the client built for credential, calling build on a miss.
// Build errors are not cached.
func (c *Cache[T]) Get(credential string, build func(credential string) (T, error)) (T, error) {
	key := fingerprint(credential)

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.entries[key]; ok {
		return v, nil
	}

	v, err := build(credential)
	if err != nil {
		var zero T
		return zero, err
	}

	c.entries[key] = v
	c.order = append(c.order, key)
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	return v, nil
}

// Len returns the number of cached clients.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Purge drops every cached client.
func (c *Cache[T]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]T)
	c.order = nil
}

// fingerprint avoids keeping raw secrets as map keys.
func fingerprint(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}
