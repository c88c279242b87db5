// Copyright 2024 The PolliNet Authors
// This file is part of the PolliNet core.
//
// The PolliNet core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The PolliNet core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the PolliNet core. If not, see <http://www.gnu.org/licenses/>.

// Package router implements the mesh router (§4.7): TTL-flood dispatch
// by packet type, the seen-message dedup cache, and per-sender rate
// limiting.
package router

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/pollinet/pollinet-core/params"
)

// SeenMessageCache is an LRU+TTL cache of msg_id -> first_seen, capacity
// 1000, TTL 10 minutes, per spec §3.
type SeenMessageCache struct {
	mu    sync.Mutex
	cache *lru.Cache
}

type seenEntry struct {
	firstSeen time.Time
}

// NewSeenMessageCache constructs a cache bounded by SeenCacheCapacity.
func NewSeenMessageCache() *SeenMessageCache {
	cache, err := lru.New(params.SeenCacheCapacity)
	if err != nil {
		panic(err) // only errors on non-positive capacity, never the case here
	}
	return &SeenMessageCache{cache: cache}
}

// SeenAndMark reports whether msgID was already present (i.e. this
// packet has been seen before) and, if not, inserts it with firstSeen =
// now.
func (c *SeenMessageCache) SeenAndMark(msgID [16]byte, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.cache.Get(msgID); ok {
		entry := v.(seenEntry)
		if now.Sub(entry.firstSeen) <= params.SeenCacheTTL {
			return true
		}
		// TTL-expired: treat as unseen, refresh the entry below.
	}
	c.cache.Add(msgID, seenEntry{firstSeen: now})
	return false
}

// Len reports the number of live entries, for observability/tests.
func (c *SeenMessageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Purge evicts every entry older than SeenCacheTTL. The underlying LRU
// does not expire entries on its own; Purge is invoked from the relay
// worker's periodic CleanupTick ("rate-limit window reset" in spec §4.8
// also lives here, see ratelimit.go).
func (c *SeenMessageCache) Purge(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.cache.Keys() {
		v, ok := c.cache.Peek(key)
		if !ok {
			continue
		}
		entry := v.(seenEntry)
		if now.Sub(entry.firstSeen) > params.SeenCacheTTL {
			c.cache.Remove(key)
		}
	}
}
