package core

import (
	lru "github.com/hashicorp/golang-lru"
)

// defaultSeenCacheSize bounds memory use the same way common/cache.go bounds
// its LRU-backed caches: a fixed capacity rather than unbounded growth.
const defaultSeenCacheSize = 4096

// SeenCache is a bounded, concurrency-safe set of recently observed item
// ids. It does not gate correctness — Blockchain's pending/committed id
// sets already make duplicate gossip safe (§5) — it only avoids redundant
// rebroadcasts in a densely connected mesh (§9 "viral broadcast" can fan
// out O(N^2) messages on join).
type SeenCache struct {
	cache *lru.Cache
}

// NewSeenCache returns a cache with the default capacity.
func NewSeenCache() *SeenCache {
	c, err := lru.New(defaultSeenCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size, which is a fixed
		// constant here.
		panic(err)
	}
	return &SeenCache{cache: c}
}

// MarkSeen records id and reports whether it had already been recorded.
func (s *SeenCache) MarkSeen(id string) (alreadySeen bool) {
	if s.cache.Contains(id) {
		s.cache.Get(id) // refresh recency
		return true
	}
	s.cache.Add(id, struct{}{})
	return false
}
