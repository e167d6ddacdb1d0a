package cache

import (
	"path"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache is a size and TTL bounded LRU keyed by strings such as
// "products:{id}" or "stores:{id}:team", invalidated by glob pattern.
type Cache[V any] struct {
	lru *expirable.LRU[string, V]
}

// New builds a cache holding at most size entries for ttl each.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size <= 0 {
		size = 1
	}
	return &Cache[V]{lru: expirable.NewLRU[string, V](size, nil, ttl)}
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	return c.lru.Get(key)
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Invalidate removes every key matching one of patterns (path.Match syntax;
// "stores:sto_1" plus "stores:sto_1:*" drop a store and its derived keys).
// It returns the number of removed entries.
func (c *Cache[V]) Invalidate(patterns ...string) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		for _, pattern := range patterns {
			if ok, err := path.Match(pattern, key); err == nil && ok {
				if c.lru.Remove(key) {
					removed++
				}
				break
			}
		}
	}
	return removed
}

// Len reports the number of live entries.
func (c *Cache[V]) Len() int {
	return c.lru.Len()
}
