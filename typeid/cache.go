// Copyright The PARTS Authors
// SPDX-License-Identifier: Apache-2.0

package typeid // import "github.com/parts-pauth/parts/typeid"

import (
	"sync"
	"sync/atomic"

	lru "github.com/elastic/go-freelru"
	"github.com/zeebo/xxh3"

	"github.com/parts-pauth/parts/types"
)

// DefaultCacheSize is the number of type spellings kept in a Cache.
const DefaultCacheSize = 4096

// hashString is the key hash callback of the spelling LRU.
// xxh3 turned out to be the fastest hash function for strings in the FreeLRU benchmarks.
func hashString(s string) uint32 {
	return uint32(xxh3.HashString(s))
}

// Cache memoizes identifiers of types and remembers which type produced an
// identifier, so later stages can recover the pointee structure from an ID.
// It is safe for concurrent use.
type Cache struct {
	ids *lru.SyncedLRU[string, TypeID]

	mu    sync.RWMutex
	types map[TypeID]types.Type

	hit  atomic.Uint64
	miss atomic.Uint64
}

// NewCache returns a cache holding up to size spellings.
func NewCache(size uint32) (*Cache, error) {
	ids, err := lru.NewSynced[string, TypeID](size, hashString)
	if err != nil {
		return nil, err
	}
	return &Cache{
		ids:   ids,
		types: make(map[TypeID]types.Type),
	}, nil
}

// Of returns the identifier of t, see the package level Of.
func (c *Cache) Of(t types.Type) TypeID {
	if !types.IsPointer(t) {
		return None
	}
	key := t.String()
	if id, ok := c.ids.Get(key); ok {
		c.hit.Add(1)
		return id
	}
	c.miss.Add(1)
	id := Of(t)
	c.ids.Add(key, id)

	c.mu.Lock()
	if _, ok := c.types[id]; !ok {
		c.types[id] = t
	}
	c.mu.Unlock()
	return id
}

// TypeOf returns the pointer type that produced id, if the cache has seen it.
func (c *Cache) TypeOf(id TypeID) (types.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[id]
	return t, ok
}

// Statistics returns the number of lookups served from and missing the cache.
func (c *Cache) Statistics() (hit, miss uint64) {
	return c.hit.Load(), c.miss.Load()
}
