// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"sync"

	"github.com/luxfi/geth/common/lru"
)

// LRUCache is a bounded read-through cache for immutable data such as
// transaction receipts: once fetched, an entry never goes stale, it is only
// evicted for capacity.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
	lock  sync.RWMutex
}

func NewLRUCache[K comparable, V any](size int) *LRUCache[K, V] {
	return &LRUCache[K, V]{
		cache: lru.NewCache[K, V](size),
	}
}

// Get returns the cached value for key, fetching it with fetchFunc on a
// miss. If [invalidate] is true the entry is cleared before fetching.
// Unlike TTLCache there is no expiration; callers must only cache data
// that cannot change.
func (c *LRUCache[K, V]) Get(key K, fetchFunc func(K) (V, error), invalidate bool) (V, error) {
	if invalidate {
		c.lock.Lock()
		c.cache.Remove(key)
		c.lock.Unlock()
	} else {
		c.lock.RLock()
		if value, found := c.cache.Get(key); found {
			c.lock.RUnlock()
			return value, nil
		}
		c.lock.RUnlock()
	}

	value, err := fetchFunc(key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.lock.Lock()
	c.cache.Add(key, value)
	c.lock.Unlock()

	return value, nil
}
